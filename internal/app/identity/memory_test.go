package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/planboard/project/internal/platform/auth"
)

func TestMemoryRepository_SessionLifecycle(t *testing.T) {
	svc := NewService(NewMemoryRepository(), auth.NewManager("secret", time.Hour))
	ctx := context.Background()

	reg, err := svc.Register(ctx, "Alice", "password123")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "password123"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	refreshed, err := svc.Refresh(ctx, reg.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if _, err := svc.Refresh(ctx, reg.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("rotated token should be rejected, got %v", err)
	}

	if err := svc.LogoutAll(ctx, reg.UserID); err != nil {
		t.Fatalf("LogoutAll returned error: %v", err)
	}
	if _, err := svc.Refresh(ctx, refreshed.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("token should be revoked after LogoutAll, got %v", err)
	}
}
