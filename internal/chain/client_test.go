package chain

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestValidateURL(t *testing.T) {
	valid := []string{
		"http://127.0.0.1:8545",
		"https://rpc.example.org/v1/key",
		"ws://localhost:8546",
		"/tmp/geth.ipc",
	}
	for _, input := range valid {
		if err := ValidateURL(input); err != nil {
			t.Fatalf("expected %q to be valid: %v", input, err)
		}
	}

	invalid := []string{
		"",
		"not a url",
		"ftp://example.org",
		"http://",
		"htp:/127.0.0.1",
	}
	for _, input := range invalid {
		if err := ValidateURL(input); err == nil {
			t.Fatalf("expected %q to be invalid", input)
		}
	}
}

func TestClassifyConnectionRefused(t *testing.T) {
	refused := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
	}
	wrapped := fmt.Errorf("post: %w", refused)

	if !IsConnectionRefused(wrapped) {
		t.Fatalf("expected connection refused")
	}
	if !errors.Is(Classify(wrapped), ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable")
	}

	other := errors.New("401 unauthorized")
	if errors.Is(Classify(other), ErrUnavailable) {
		t.Fatalf("unexpected ErrUnavailable for %v", other)
	}
	if Classify(nil) != nil {
		t.Fatalf("expected nil")
	}
}
