package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	domain "github.com/snackworks/api/internal/domain"
	"github.com/snackworks/api/internal/repositories"
)

const (
	deletionCodeDigits = 6
	deletionCodeTTL    = 30 * time.Minute
)

var (
	// ErrUserInvalidInput signals malformed profile or deletion input.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the user profile does not exist.
	ErrUserNotFound = errors.New("user: not found")
	// ErrDeletionCodeInvalid covers wrong, expired, and missing deletion codes.
	ErrDeletionCodeInvalid = errors.New("user: deletion code invalid")
)

// UserServiceDeps bundles collaborators required to construct the user service.
type UserServiceDeps struct {
	Users         repositories.UserRepository
	Notifications NotificationDispatcher
	Clock         func() time.Time
	CodeGenerator func() (string, error)
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users         repositories.UserRepository
	notifications NotificationDispatcher
	clock         func() time.Time
	newCode       func() (string, error)
	logger        func(context.Context, string, map[string]any)
}

// NewUserService wires profile management and the account-deletion flow.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	codeGen := deps.CodeGenerator
	if codeGen == nil {
		codeGen = generateDeletionCode
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &userService{
		users:         deps.Users,
		notifications: deps.Notifications,
		clock:         func() time.Time { return clock().UTC() },
		newCode:       codeGen,
		logger:        logger,
	}, nil
}

// EnsureProfile upserts the authenticated identity's profile so downstream
// flows (orders, reviews, deletion) have a record to attach to.
func (s *userService) EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) (User, error) {
	uid := strings.TrimSpace(cmd.UID)
	if uid == "" {
		return User{}, fmt.Errorf("%w: uid is required", ErrUserInvalidInput)
	}

	existing, err := s.users.FindByID(ctx, uid)
	if err == nil {
		if existing.Deleted() {
			return User{}, ErrUserNotFound
		}
		changed := false
		if email := strings.TrimSpace(cmd.Email); email != "" && !strings.EqualFold(email, existing.Email) {
			existing.Email = email
			changed = true
		}
		if phone := strings.TrimSpace(cmd.Phone); phone != "" && phone != existing.Phone {
			existing.Phone = phone
			changed = true
		}
		if name := strings.TrimSpace(cmd.DisplayName); name != "" && name != existing.DisplayName {
			existing.DisplayName = name
			changed = true
		}
		if !changed {
			return existing, nil
		}
		return s.upsert(ctx, existing)
	}

	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		return User{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	return s.upsert(ctx, User{
		UID:         uid,
		Email:       strings.TrimSpace(cmd.Email),
		Phone:       strings.TrimSpace(cmd.Phone),
		DisplayName: strings.TrimSpace(cmd.DisplayName),
		CreatedAt:   now,
	})
}

// RequestDeletion generates a short-lived verification code, stores only its
// hash, and emails the code to the account address.
func (s *userService) RequestDeletion(ctx context.Context, userID string) error {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("%w: account has no email address", ErrUserInvalidInput)
	}

	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("user: generate deletion code: %w", err)
	}

	now := s.clock()
	expiresAt := now.Add(deletionCodeTTL)
	if err := s.users.SetDeletionCode(ctx, user.UID, hashDeletionCode(code), expiresAt, now); err != nil {
		return s.mapRepositoryError(err)
	}

	s.logger(ctx, "user.deletion.requested", map[string]any{"user": user.UID})

	if s.notifications == nil {
		return nil
	}
	err = s.notifications.Send(ctx, domain.Notification{
		Kind:      domain.NotificationDeletionCode,
		Recipient: user.Email,
		Payload: map[string]any{
			"code":      code,
			"expiresAt": expiresAt.Format(time.RFC3339),
		},
		EnqueuedAt: now,
	})
	if err != nil {
		// The code is stored; the user can retry the request to get a fresh one.
		s.logger(ctx, "user.deletion.notification.failed", map[string]any{
			"user":  user.UID,
			"error": err.Error(),
		})
	}
	return err
}

// ConfirmDeletion verifies the code and soft deletes the account. Orders stay
// attributed to the UID for bookkeeping.
func (s *userService) ConfirmDeletion(ctx context.Context, userID string, code string) error {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}

	submitted := strings.TrimSpace(code)
	if submitted == "" || user.DeletionCodeHash == "" {
		return ErrDeletionCodeInvalid
	}
	now := s.clock()
	if user.DeletionCodeExpires == nil || now.After(*user.DeletionCodeExpires) {
		return ErrDeletionCodeInvalid
	}
	if subtle.ConstantTimeCompare([]byte(hashDeletionCode(submitted)), []byte(user.DeletionCodeHash)) != 1 {
		return ErrDeletionCodeInvalid
	}

	if err := s.users.SoftDelete(ctx, user.UID, now); err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "user.deleted", map[string]any{"user": user.UID})
	return nil
}

func (s *userService) activeUser(ctx context.Context, userID string) (User, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	if user.Deleted() {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *userService) upsert(ctx context.Context, user User) (User, error) {
	saved, err := s.users.Upsert(ctx, user)
	if err != nil {
		return User{}, s.mapRepositoryError(err)
	}
	return saved, nil
}

func (s *userService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrUserNotFound
		case repoErr.IsUnavailable():
			return fmt.Errorf("user: repository unavailable: %w", err)
		}
	}
	return err
}

func generateDeletionCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < deletionCodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", deletionCodeDigits, n), nil
}

func hashDeletionCode(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}
