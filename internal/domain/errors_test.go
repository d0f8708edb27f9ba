package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestPublicMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation detail", Invalid("message cannot be empty"), "Message cannot be empty"},
		{"wrapped validation detail", fmt.Errorf("send message: %w", Invalid("message cannot be empty")), "Message cannot be empty"},
		{"formatted detail", Invalid("message exceeds %d characters", 1000), "Message exceeds 1000 characters"},
		{"bare sentinel", ErrValidation, "Invalid request"},
		{"recipient", fmt.Errorf("lookup: %w", ErrRecipientNotFound), "Recipient not found"},
		{"unauthorized", ErrUnauthorized, "Authentication error"},
		{"not found", ErrNotFound, "Not found"},
		{"unclassified", errors.New("boom"), "Failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PublicMessage(tt.err, "Failed"); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestInvalidMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("outer: %w", Invalid("sender ID is required"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err.Error() != "outer: validation failed: sender ID is required" {
		t.Errorf("unexpected text %q", err.Error())
	}
}
