package sms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
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
		{name: "10-digit format with leading 0", input: "0771234567", expected: "771234567"},
		{name: "11-digit format with country code 94", input: "94771234567", expected: "771234567"},
		{name: "12-digit format with +94", input: "+94771234567", expected: "771234567"},
		{name: "Already 9-digit format", input: "771234567", expected: "771234567"},
		{name: "With spaces", input: "077 123 4567", expected: "771234567"},
		{name: "With dashes", input: "077-123-4567", expected: "771234567"},
		{name: "Too short", input: "07712", expectError: true},
		{name: "Landline", input: "0112345678", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := FormatPhoneForDialog(tt.input)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDialogGateway_SendMessage(t *testing.T) {
	var logins int32
	var sent SendSMSRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			atomic.AddInt32(&logins, 1)
			json.NewEncoder(w).Encode(LoginResponse{Status: "success", Token: "tok-1", Expiration: 3600})
		case "/sms":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
			json.NewEncoder(w).Encode(map[string]interface{}{"status": "success", "data": map[string]interface{}{"campaignId": 7}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	gateway := NewDialogGateway(DialogConfig{APIURL: server.URL, Username: "u", Password: "p", Mask: "SmartTrans"})

	txID, err := gateway.SendMessage(context.Background(), "0771234567", "Booking BK-1 confirmed")
	require.NoError(t, err)
	assert.NotZero(t, txID)
	require.Len(t, sent.MSISDN, 1)
	assert.Equal(t, "771234567", sent.MSISDN[0].Mobile)
	assert.Equal(t, "SmartTrans", sent.SourceAddress)
	assert.Equal(t, "Booking BK-1 confirmed", sent.Message)

	// token is reused while valid
	_, err = gateway.SendMessage(context.Background(), "0711234567", "again")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&logins))
}

func TestDialogGateway_LoginFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(LoginResponse{Status: "failed", Comment: "bad credentials", ErrCode: "104"})
	}))
	defer server.Close()

	gateway := NewDialogGateway(DialogConfig{APIURL: server.URL})
	_, err := gateway.SendMessage(context.Background(), "0771234567", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad credentials")
}

func TestDialogGateway_InvalidPhone(t *testing.T) {
	gateway := NewDialogGateway(DialogConfig{APIURL: "http://127.0.0.1:0"})
	_, err := gateway.SendMessage(context.Background(), "123", "hi")
	assert.Error(t, err)
}

func TestDialogURLGateway_SendMessage(t *testing.T) {
	var query map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte("1"))
	}))
	defer server.Close()

	gateway := NewDialogURLGateway(server.URL, "key-1", "SmartTrans")
	_, err := gateway.SendMessage(context.Background(), "0771234567", "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"key-1"}, query["esmsqk"])
	assert.Equal(t, []string{"771234567"}, query["list"])
	assert.Equal(t, []string{"hello"}, query["message"])
}

func TestDialogURLGateway_ErrorCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("2001"))
	}))
	defer server.Close()

	gateway := NewDialogURLGateway(server.URL, "key-1", "SmartTrans")
	_, err := gateway.SendMessage(context.Background(), "0771234567", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2001")
}

func TestLogGateway(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	gateway := NewLogGateway(logger)

	txID, err := gateway.SendMessage(context.Background(), "0771234567", "hello")
	require.NoError(t, err)
	assert.NotZero(t, txID)
	assert.Equal(t, "Log Gateway", gateway.GetName())

	_, err = gateway.SendMessage(context.Background(), "12", "hello")
	assert.Error(t, err)
}
