package validator

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrEmptyPhone    = errors.New("phone number cannot be empty")
	ErrInvalidFormat = errors.New("phone number can only contain digits")
	ErrInvalidLength = errors.New("phone number must be exactly 10 digits")
	ErrInvalidPrefix = errors.New("phone number must start with a Sri Lankan mobile prefix")
)

// Mobile operator prefixes accepted for passenger contact numbers
var defaultPrefixes = []string{"070", "071", "072", "074", "075", "076", "077", "078"}

// PhoneValidator normalizes passenger phone numbers to the local 0XXXXXXXXX form
// that is stored on users and bookings and handed to the SMS gateway.
type PhoneValidator struct {
	prefixes map[string]bool
}

// NewPhoneValidator accepts the standard mobile prefixes plus any extras,
// e.g. a sandbox prefix used by the SMS provider in staging.
func NewPhoneValidator(extraPrefixes ...string) *PhoneValidator {
	v := &PhoneValidator{prefixes: make(map[string]bool)}
	for _, p := range defaultPrefixes {
		v.prefixes[p] = true
	}
	for _, p := range extraPrefixes {
		if p = strings.TrimSpace(p); len(p) == 3 {
			v.prefixes[p] = true
		}
	}
	return v
}

// Validate returns the normalized number.
// Accepts 0771234567, 077 123 4567, 077-123-4567, +94 77 123 4567 and 94771234567.
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := Sanitize(phone)
	for _, r := range sanitized {
		if !unicode.IsDigit(r) {
			return "", ErrInvalidFormat
		}
	}
	if len(sanitized) != 10 {
		return "", ErrInvalidLength
	}
	if !v.prefixes[sanitized[:3]] {
		return "", ErrInvalidPrefix
	}
	return sanitized, nil
}

// IsValid reports whether phone normalizes cleanly
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}

// Format renders a valid number as 07X XXX XXXX for tickets and receipts
func (v *PhoneValidator) Format(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", sanitized[:3], sanitized[3:6], sanitized[6:]), nil
}

// Sanitize strips separators and rewrites the 94 country code to a leading 0
func Sanitize(phone string) string {
	phone = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '+', '.':
			return -1
		}
		return r
	}, phone)

	if strings.HasPrefix(phone, "94") && len(phone) == 11 {
		phone = "0" + phone[2:]
	}
	return phone
}
