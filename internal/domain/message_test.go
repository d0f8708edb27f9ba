package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestStatusOrdering(t *testing.T) {
	if !StatusSending.Before(StatusSent) {
		t.Errorf("expected sending before sent")
	}
	if !StatusDelivered.Before(StatusRead) {
		t.Errorf("expected delivered before read")
	}
	if StatusRead.Before(StatusDelivered) {
		t.Errorf("expected read not before delivered")
	}
	if StatusSent.Before(StatusSent) {
		t.Errorf("expected status not before itself")
	}
	if Status("bogus").Before(StatusRead) {
		t.Errorf("expected unknown status never before anything")
	}
}

func TestStatusesBefore(t *testing.T) {
	tests := []struct {
		target Status
		want   []Status
	}{
		{StatusSending, nil},
		{StatusSent, []Status{StatusSending}},
		{StatusDelivered, []Status{StatusSending, StatusSent}},
		{StatusRead, []Status{StatusSending, StatusSent, StatusDelivered}},
	}
	for _, tt := range tests {
		got := StatusesBefore(tt.target)
		if len(got) != len(tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.target, tt.want, got)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: expected %v, got %v", tt.target, tt.want, got)
			}
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus("delivered"); err != nil || s != StatusDelivered {
		t.Errorf("expected delivered, got %q (%v)", s, err)
	}
	if _, err := ParseStatus("lost"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestValidateBody(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"trimmed", "  hello \n", "hello", false},
		{"empty", "", "", true},
		{"whitespace only", "   \t ", "", true},
		{"at limit", strings.Repeat("a", 10), strings.Repeat("a", 10), false},
		{"over limit", strings.Repeat("a", 11), "", true},
		{"multibyte counts runes", strings.Repeat("é", 10), strings.Repeat("é", 10), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateBody(tt.in, 10)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCounterpart(t *testing.T) {
	m := &Message{SenderID: "a", RecipientID: "b"}
	if m.Counterpart("a") != "b" || m.Counterpart("b") != "a" {
		t.Errorf("unexpected counterpart resolution")
	}
}
