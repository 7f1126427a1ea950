package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped", fmt.Errorf("mineru: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"net timeout", fmt.Errorf("post: %w", timeoutErr{}), true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"message pattern", errors.New("read tcp: i/o timeout"), true},
		{"unexpected eof", errors.New("Post \"http://x\": unexpected EOF"), true},
		{"permanent", errors.New("invalid pdf"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("status %d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("status %d should not be transient", code)
		}
	}
}

func TestStatusError(t *testing.T) {
	err := StatusError("mineru", 503, []byte("busy\n"))
	if !IsTransient(err) {
		t.Error("503 should be transient")
	}
	var te *TransientError
	if !errors.As(err, &te) || te.StatusCode != 503 {
		t.Errorf("expected TransientError with status 503, got %v", err)
	}
	if err.Error() != "mineru: HTTP 503: busy" {
		t.Errorf("unexpected message %q", err.Error())
	}

	err = StatusError("mineru", 422, []byte(strings.Repeat("x", 500)))
	if IsTransient(err) {
		t.Error("422 should be permanent")
	}
	if len(err.Error()) > len("mineru: HTTP 422: ")+200 {
		t.Errorf("body not truncated: %d bytes", len(err.Error()))
	}
}

func TestClassifyError(t *testing.T) {
	if got := ClassifyError(NewTransientError(errors.New("x"), 502)); got != "transient" {
		t.Errorf("got %q", got)
	}
	if got := ClassifyError(errors.New("no table")); got != "permanent" {
		t.Errorf("got %q", got)
	}
}
