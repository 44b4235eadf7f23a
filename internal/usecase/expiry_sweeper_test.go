package usecase

import (
	"testing"
	"time"
)

func TestNewExpirySweeper_DefaultsNonPositiveInterval(t *testing.T) {
	s := NewExpirySweeper(nil, nil, 0)
	if s.Interval != time.Hour {
		t.Fatalf("expected default interval of 1h, got %s", s.Interval)
	}

	s = NewExpirySweeper(nil, nil, -5*time.Minute)
	if s.Interval != time.Hour {
		t.Fatalf("expected default interval of 1h for negative input, got %s", s.Interval)
	}
}

func TestNewExpirySweeper_KeepsPositiveInterval(t *testing.T) {
	s := NewExpirySweeper(nil, nil, 30*time.Second)
	if s.Interval != 30*time.Second {
		t.Fatalf("expected interval to be preserved, got %s", s.Interval)
	}
}
