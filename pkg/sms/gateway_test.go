package sms

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPhoneForDialog(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    string
		expectError bool
	}{
		{name: "Standard format with 0", input: "0771234567", expected: "771234567"},
		{name: "Country code without +", input: "94771234567", expected: "771234567"},
		{name: "Country code with +", input: "+94771234567", expected: "771234567"},
		{name: "Already 9 digits", input: "771234567", expected: "771234567"},
		{name: "With spaces", input: "077 123 4567", expected: "771234567"},
		{name: "With dashes", input: "077-123-4567", expected: "771234567"},
		{name: "Invalid - too short", input: "077123", expectError: true},
		{name: "Invalid - too long", input: "0771234567890", expectError: true},
		{name: "Invalid - landline", input: "0112345678", expectError: true},
		{name: "Empty string", input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := FormatPhoneForDialog(tt.input)

			if tt.expectError {
				assert.Error(t, err)
				assert.Empty(t, result)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestDialogURLGateway_Send(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var gotQuery map[string][]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			_, _ = w.Write([]byte("1"))
		}))
		defer server.Close()

		gateway := NewDialogURLGateway(server.URL, "key-123", "SmartTransit", newTestLogger())
		err := gateway.Send(context.Background(), "0771234567", "Your ticket EB-20250101-ABCDE")

		require.NoError(t, err)
		assert.Equal(t, []string{"key-123"}, gotQuery["esmsqk"])
		assert.Equal(t, []string{"771234567"}, gotQuery["list"])
		assert.Equal(t, []string{"SmartTransit"}, gotQuery["source_address"])
		assert.Equal(t, []string{"Your ticket EB-20250101-ABCDE"}, gotQuery["message"])
	})

	t.Run("error code in body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("2001"))
		}))
		defer server.Close()

		gateway := NewDialogURLGateway(server.URL, "key", "mask", newTestLogger())
		err := gateway.Send(context.Background(), "0771234567", "hello")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "2001")
	})

	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		gateway := NewDialogURLGateway(server.URL, "key", "mask", newTestLogger())
		err := gateway.Send(context.Background(), "0771234567", "hello")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("invalid phone never hits the API", func(t *testing.T) {
		called := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer server.Close()

		gateway := NewDialogURLGateway(server.URL, "key", "mask", newTestLogger())
		err := gateway.Send(context.Background(), "0112345678", "hello")

		require.Error(t, err)
		assert.False(t, called)
	})
}

func TestLogGateway(t *testing.T) {
	gateway := NewLogGateway(newTestLogger())
	assert.NoError(t, gateway.Send(context.Background(), "0771234567", "hello"))
	assert.Equal(t, "Log Gateway", gateway.Name())
}
