package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/snackworks/api/internal/domain"
	pfirestore "github.com/snackworks/api/internal/platform/firestore"
	"github.com/snackworks/api/internal/repositories"
)

const userCollection = "users"

// UserRepository persists user profiles in Firestore.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection)
	return &UserRepository{base: base, provider: provider}, nil
}

// FindByID loads the user profile by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, errors.New("user repository: user id is required")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	user := toDomainUser(doc.ID, doc.Data)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = doc.CreateTime
	}
	return user, nil
}

// Upsert writes the full profile under the UID.
func (r *UserRepository) Upsert(ctx context.Context, user domain.User) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(user.UID)
	if uid == "" {
		return domain.User{}, errors.New("user repository: uid is required")
	}

	now := time.Now().UTC()
	doc := fromDomainUser(user, now)
	if _, err := r.base.Set(ctx, uid, doc); err != nil {
		return domain.User{}, err
	}
	saved := toDomainUser(uid, doc)
	return saved, nil
}

// SetDeletionCode stores the hashed deletion code and its expiry.
func (r *UserRepository) SetDeletionCode(ctx context.Context, userID string, codeHash string, expiresAt time.Time, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user repository: user id is required")
	}
	_, err := r.base.Update(ctx, userID, []firestore.Update{
		{Path: "deletionCodeHash", Value: strings.TrimSpace(codeHash)},
		{Path: "deletionCodeExpires", Value: expiresAt.UTC()},
		{Path: "updatedAt", Value: now.UTC()},
	})
	return err
}

// SoftDelete marks the account deleted and clears the pending deletion code.
func (r *UserRepository) SoftDelete(ctx context.Context, userID string, deletedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user repository: user id is required")
	}
	_, err := r.base.Update(ctx, userID, []firestore.Update{
		{Path: "deletedAt", Value: deletedAt.UTC()},
		{Path: "deletionCodeHash", Value: firestore.Delete},
		{Path: "deletionCodeExpires", Value: firestore.Delete},
		{Path: "updatedAt", Value: deletedAt.UTC()},
	})
	return err
}

type userDocument struct {
	Email                string     `firestore:"email"`
	Phone                string     `firestore:"phone,omitempty"`
	DisplayName          string     `firestore:"displayName,omitempty"`
	BlockedFromReviewing bool       `firestore:"blockedFromReviewing"`
	DeletedAt            *time.Time `firestore:"deletedAt,omitempty"`
	DeletionCodeHash     string     `firestore:"deletionCodeHash,omitempty"`
	DeletionCodeExpires  *time.Time `firestore:"deletionCodeExpires,omitempty"`
	CreatedAt            time.Time  `firestore:"createdAt"`
	UpdatedAt            time.Time  `firestore:"updatedAt"`
}

func fromDomainUser(user domain.User, now time.Time) userDocument {
	doc := userDocument{
		Email:                strings.ToLower(strings.TrimSpace(user.Email)),
		Phone:                strings.TrimSpace(user.Phone),
		DisplayName:          strings.TrimSpace(user.DisplayName),
		BlockedFromReviewing: user.BlockedFromReviewing,
		DeletionCodeHash:     strings.TrimSpace(user.DeletionCodeHash),
		CreatedAt:            user.CreatedAt.UTC(),
		UpdatedAt:            now,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if user.DeletedAt != nil {
		value := user.DeletedAt.UTC()
		doc.DeletedAt = &value
	}
	if user.DeletionCodeExpires != nil {
		value := user.DeletionCodeExpires.UTC()
		doc.DeletionCodeExpires = &value
	}
	return doc
}

func toDomainUser(uid string, doc userDocument) domain.User {
	return domain.User{
		UID:                  uid,
		Email:                doc.Email,
		Phone:                doc.Phone,
		DisplayName:          doc.DisplayName,
		BlockedFromReviewing: doc.BlockedFromReviewing,
		DeletedAt:            doc.DeletedAt,
		DeletionCodeHash:     doc.DeletionCodeHash,
		DeletionCodeExpires:  doc.DeletionCodeExpires,
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)
