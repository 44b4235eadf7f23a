package usecase

import (
	"context"
	"errors"
	"testing"

	"storegate/internal/domain"
)

func TestObjectPipeline_CreateBucket_RejectsEmptyName(t *testing.T) {
	p := &ObjectPipeline{}
	_, err := p.CreateBucket(context.Background(), "tenant-a", domain.ObjBucket{Name: ""})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestObjectPipeline_CreateBucket_RejectsOverlongName(t *testing.T) {
	p := &ObjectPipeline{}
	name := make([]byte, 300)
	for i := range name {
		name[i] = 'b'
	}
	_, err := p.CreateBucket(context.Background(), "tenant-a", domain.ObjBucket{Name: string(name)})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
