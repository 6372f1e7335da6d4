package biz

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"RelayGate/pkg/gemini"

	"github.com/stretchr/testify/assert"
)

// Test Classify - provider status codes map onto the taxonomy
func TestClassify_StatusCodes(t *testing.T) {
	cases := []struct {
		code int
		want ErrorKind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{429, KindQuotaExceeded},
		{500, KindTransient},
		{502, KindTransient},
		{503, KindTransient},
		{400, KindTransient}, // unknown 4xx defaults to transient
	}

	for _, tc := range cases {
		err := &gemini.StatusError{StatusCode: tc.code, Message: "x"}
		assert.Equal(t, tc.want, Classify(err), "status %d", tc.code)
	}
}

// Test Classify - wrapped status errors still classify
func TestClassify_WrappedError(t *testing.T) {
	err := fmt.Errorf("attempt failed: %w", &gemini.StatusError{StatusCode: 403})
	assert.Equal(t, KindAuth, Classify(err))
}

// Test Classify - timeouts and cancellations are transient
func TestClassify_ContextErrors(t *testing.T) {
	assert.Equal(t, KindTransient, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindTransient, Classify(context.Canceled))
	assert.Equal(t, KindTransient, Classify(fmt.Errorf("call: %w", context.DeadlineExceeded)))
}

// Test Classify - network errors are transient
func TestClassify_NetError(t *testing.T) {
	var netErr net.Error = &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	assert.Equal(t, KindTransient, Classify(netErr))
}

// Test Classify - unknown errors default to transient
func TestClassify_UnknownDefaultsTransient(t *testing.T) {
	assert.Equal(t, KindTransient, Classify(errors.New("something odd")))
}

// Test Retryable - only auth errors are terminal
func TestRetryable(t *testing.T) {
	assert.True(t, KindTransient.Retryable())
	assert.True(t, KindRateLimited.Retryable())
	assert.True(t, KindQuotaExceeded.Retryable())
	assert.False(t, KindAuth.Retryable())
}

// Test String - log-friendly names
func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "rate_limited", KindRateLimited.String())
	assert.Equal(t, "quota_exceeded", KindQuotaExceeded.String())
	assert.Equal(t, "auth_error", KindAuth.String())
}
