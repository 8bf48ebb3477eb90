package realtime

import (
	"context"
	"errors"
	"testing"
)

func TestMint_DisabledByDefault(t *testing.T) {
	iss := New(Config{}, nil)
	_, err := iss.Mint(context.Background(), "session1", "user1", "user1@example.com")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestMint_EnabledWithoutAPIKeyStillDisabled(t *testing.T) {
	iss := New(Config{Enabled: true}, nil)
	_, err := iss.Mint(context.Background(), "session1", "user1", "user1@example.com")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled when APIKey is blank, got %v", err)
	}
}
