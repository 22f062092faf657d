package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	v := NewPhoneValidator()

	t.Run("valid numbers", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
			want  string
		}{
			{"plain", "0771234567", "0771234567"},
			{"spaces", "077 123 4567", "0771234567"},
			{"dashes", "077-123-4567", "0771234567"},
			{"dots", "077.123.4567", "0771234567"},
			{"parentheses", "(077) 123 4567", "0771234567"},
			{"country code", "94771234567", "0771234567"},
			{"international", "+94 71 234 5678", "0712345678"},
			{"hutch", "0781234567", "0781234567"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := v.Validate(tt.input)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	})

	t.Run("invalid numbers", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
			want  error
		}{
			{"empty", "", ErrEmptyPhone},
			{"whitespace", "   ", ErrEmptyPhone},
			{"letters", "077123456a", ErrInvalidFormat},
			{"too short", "077123", ErrInvalidLength},
			{"too long", "07712345678", ErrInvalidLength},
			{"landline", "0112345678", ErrInvalidPrefix},
			{"unknown prefix", "0731234567", ErrInvalidPrefix},
			{"sandbox prefix without opt-in", "0671234567", ErrInvalidPrefix},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := v.Validate(tt.input)
				assert.ErrorIs(t, err, tt.want)
			})
		}
	})
}

func TestNewPhoneValidator_ExtraPrefixes(t *testing.T) {
	v := NewPhoneValidator("067", " ", "0")

	assert.True(t, v.IsValid("0671234567"))
	assert.True(t, v.IsValid("0771234567"))
	assert.False(t, v.IsValid("0001234567"))
}

func TestFormat(t *testing.T) {
	v := NewPhoneValidator()

	got, err := v.Format("+94771234567")
	require.NoError(t, err)
	assert.Equal(t, "077 123 4567", got)

	_, err = v.Format("12")
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "0771234567", Sanitize("+94 (77) 123-4567"))
	assert.Equal(t, "9477123456", Sanitize("9477123456"), "only 11-digit numbers carry the country code")
}
