package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultDialogURL is Dialog's URL campaign endpoint
const DefaultDialogURL = "https://e-sms.dialog.lk/api/v1/message-via-url/create/url-campaign"

// Gateway sends a text message to a single phone number
type Gateway interface {
	Send(ctx context.Context, phone, message string) error
	Name() string
}

// DialogURLGateway sends SMS using Dialog's GET request API (URL method).
// Authentication is the esmsqk key from the Dialog portal.
type DialogURLGateway struct {
	baseURL string
	apiKey  string
	mask    string
	client  *http.Client
	logger  *logrus.Logger
}

// NewDialogURLGateway creates a new Dialog URL gateway instance
func NewDialogURLGateway(baseURL, apiKey, mask string, logger *logrus.Logger) *DialogURLGateway {
	if baseURL == "" {
		baseURL = DefaultDialogURL
	}
	return &DialogURLGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		mask:    mask,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Send delivers message to phone. Dialog answers "1" on success and an error id otherwise.
func (d *DialogURLGateway) Send(ctx context.Context, phone, message string) error {
	formattedPhone, err := FormatPhoneForDialog(phone)
	if err != nil {
		return fmt.Errorf("invalid phone number: %w", err)
	}

	params := url.Values{}
	params.Add("esmsqk", d.apiKey)
	params.Add("list", formattedPhone)
	params.Add("source_address", d.mask)
	params.Add("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build SMS request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read SMS response: %w", err)
	}
	responseStr := strings.TrimSpace(string(body))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("SMS API returned status %d: %s", resp.StatusCode, responseStr)
	}
	if responseStr != "1" {
		return fmt.Errorf("SMS sending failed with error code: %s", responseStr)
	}

	d.logger.WithField("phone", formattedPhone).Debug("SMS sent")
	return nil
}

// Name returns the name of this SMS gateway
func (d *DialogURLGateway) Name() string {
	return "Dialog URL Gateway"
}

// LogGateway only logs messages; used when SMS_MODE is dev
type LogGateway struct {
	logger *logrus.Logger
}

// NewLogGateway creates a gateway that writes messages to the log
func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

// Send logs the message
func (g *LogGateway) Send(ctx context.Context, phone, message string) error {
	g.logger.WithFields(logrus.Fields{"phone": phone, "message": message}).Info("SMS (dev mode)")
	return nil
}

// Name returns the name of this SMS gateway
func (g *LogGateway) Name() string {
	return "Log Gateway"
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// FormatPhoneForDialog converts phone number to Dialog's 9-digit format
// Input: "0771234567" (10 digits) or "94771234567" (11 digits) or "+94771234567"
// Output: "771234567" (9 digits without prefix)
func FormatPhoneForDialog(phone string) (string, error) {
	phone = nonDigits.ReplaceAllString(phone, "")

	if strings.HasPrefix(phone, "94") && len(phone) == 11 {
		phone = phone[2:]
	}
	if strings.HasPrefix(phone, "0") && len(phone) == 10 {
		phone = phone[1:]
	}

	if len(phone) != 9 {
		return "", fmt.Errorf("invalid phone number length after formatting: %d digits (expected 9)", len(phone))
	}
	if !strings.HasPrefix(phone, "7") {
		return "", fmt.Errorf("invalid Sri Lankan mobile prefix: must start with 7")
	}

	return phone, nil
}
