package usecase

import (
	"context"
	"errors"
	"testing"

	"storegate/internal/domain"
)

func TestKVEngine_CreateBucket_RejectsEmptyName(t *testing.T) {
	e := &KVEngine{}
	_, err := e.CreateBucket(context.Background(), "tenant-a", domain.KVBucket{Name: ""})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestKVEngine_CreateBucket_RejectsOverlongName(t *testing.T) {
	e := &KVEngine{}
	name := make([]byte, 256)
	for i := range name {
		name[i] = 'a'
	}
	_, err := e.CreateBucket(context.Background(), "tenant-a", domain.KVBucket{Name: string(name)})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrCASConflict, "cas-conflict"},
		{domain.ErrConflict, "conflict"},
		{domain.ErrValidation, "validation"},
		{domain.ErrNotFound, "not-found"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		if got := outcomeOf(tt.err); got != tt.want {
			t.Fatalf("outcomeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
