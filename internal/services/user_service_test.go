package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/snackworks/api/internal/domain"
)

func newTestUserService(t *testing.T, deps UserServiceDeps) UserService {
	t.Helper()
	if deps.Users == nil {
		deps.Users = &stubUserRepository{}
	}
	if deps.Clock == nil {
		at := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)
		deps.Clock = func() time.Time { return at }
	}
	if deps.CodeGenerator == nil {
		deps.CodeGenerator = func() (string, error) { return "123456", nil }
	}
	svc, err := NewUserService(deps)
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	return svc
}

func TestUserService_EnsureProfileCreatesAndUpdates(t *testing.T) {
	ctx := context.Background()

	store := map[string]domain.User{}
	users := &stubUserRepository{
		findByIDFn: func(_ context.Context, userID string) (domain.User, error) {
			user, ok := store[userID]
			if !ok {
				return domain.User{}, errStubNotFound
			}
			return user, nil
		},
		upsertFn: func(_ context.Context, user domain.User) (domain.User, error) {
			store[user.UID] = user
			return user, nil
		},
	}
	svc := newTestUserService(t, UserServiceDeps{Users: users})

	created, err := svc.EnsureProfile(ctx, EnsureProfileCommand{
		UID:   "user-1",
		Email: "asha@example.com",
	})
	if err != nil {
		t.Fatalf("EnsureProfile returned error: %v", err)
	}
	if created.Email != "asha@example.com" {
		t.Fatalf("email = %q", created.Email)
	}

	updated, err := svc.EnsureProfile(ctx, EnsureProfileCommand{
		UID:         "user-1",
		DisplayName: "Asha",
	})
	if err != nil {
		t.Fatalf("second EnsureProfile returned error: %v", err)
	}
	if updated.DisplayName != "Asha" {
		t.Fatalf("display name = %q, want Asha", updated.DisplayName)
	}
	if updated.Email != "asha@example.com" {
		t.Fatal("existing email must survive a partial update")
	}
}

func TestUserService_RequestDeletionStoresHashAndNotifies(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)

	var storedHash string
	var storedExpires time.Time
	users := &stubUserRepository{
		findByIDFn: func(_ context.Context, userID string) (domain.User, error) {
			return domain.User{UID: userID, Email: "asha@example.com"}, nil
		},
		setDeletionCodeFn: func(_ context.Context, _ string, codeHash string, expiresAt time.Time, _ time.Time) error {
			storedHash = codeHash
			storedExpires = expiresAt
			return nil
		},
	}
	dispatcher := &captureDispatcher{}
	svc := newTestUserService(t, UserServiceDeps{
		Users:         users,
		Notifications: dispatcher,
		Clock:         func() time.Time { return now },
	})

	if err := svc.RequestDeletion(ctx, "user-1"); err != nil {
		t.Fatalf("RequestDeletion returned error: %v", err)
	}

	if storedHash == "" || storedHash == "123456" {
		t.Fatalf("stored hash = %q, want a digest of the code", storedHash)
	}
	if !storedExpires.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("expires = %v, want 30m ttl", storedExpires)
	}
	if len(dispatcher.sent) != 1 {
		t.Fatalf("notifications sent = %d, want 1", len(dispatcher.sent))
	}
	sent := dispatcher.sent[0]
	if sent.Kind != domain.NotificationDeletionCode {
		t.Fatalf("kind = %q, want deletion code", sent.Kind)
	}
	if sent.Payload["code"] != "123456" {
		t.Fatalf("payload code = %v, want the plain code", sent.Payload["code"])
	}
}

func TestUserService_ConfirmDeletion(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)

	expires := now.Add(10 * time.Minute)
	deleted := false
	users := &stubUserRepository{
		findByIDFn: func(_ context.Context, userID string) (domain.User, error) {
			return domain.User{
				UID:                 userID,
				Email:               "asha@example.com",
				DeletionCodeHash:    hashDeletionCode("123456"),
				DeletionCodeExpires: &expires,
			}, nil
		},
		softDeleteFn: func(context.Context, string, time.Time) error {
			deleted = true
			return nil
		},
	}
	svc := newTestUserService(t, UserServiceDeps{
		Users: users,
		Clock: func() time.Time { return now },
	})

	if err := svc.ConfirmDeletion(ctx, "user-1", "999999"); !errors.Is(err, ErrDeletionCodeInvalid) {
		t.Fatalf("wrong code error = %v, want ErrDeletionCodeInvalid", err)
	}
	if deleted {
		t.Fatal("wrong code must not delete the account")
	}

	if err := svc.ConfirmDeletion(ctx, "user-1", "123456"); err != nil {
		t.Fatalf("ConfirmDeletion returned error: %v", err)
	}
	if !deleted {
		t.Fatal("account should be soft deleted")
	}
}

func TestUserService_ConfirmDeletionExpiredCode(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)

	expires := now.Add(-time.Minute)
	users := &stubUserRepository{
		findByIDFn: func(_ context.Context, userID string) (domain.User, error) {
			return domain.User{
				UID:                 userID,
				DeletionCodeHash:    hashDeletionCode("123456"),
				DeletionCodeExpires: &expires,
			}, nil
		},
	}
	svc := newTestUserService(t, UserServiceDeps{
		Users: users,
		Clock: func() time.Time { return now },
	})

	if err := svc.ConfirmDeletion(ctx, "user-1", "123456"); !errors.Is(err, ErrDeletionCodeInvalid) {
		t.Fatalf("error = %v, want ErrDeletionCodeInvalid", err)
	}
}

func TestUserService_DeletedAccountLooksMissing(t *testing.T) {
	ctx := context.Background()

	deletedAt := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	users := &stubUserRepository{
		findByIDFn: func(_ context.Context, userID string) (domain.User, error) {
			return domain.User{UID: userID, DeletedAt: &deletedAt}, nil
		},
	}
	svc := newTestUserService(t, UserServiceDeps{Users: users})

	if err := svc.RequestDeletion(ctx, "user-1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("error = %v, want ErrUserNotFound", err)
	}
}
