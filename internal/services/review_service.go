package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/snackworks/api/internal/domain"
	"github.com/snackworks/api/internal/platform/textutil"
	"github.com/snackworks/api/internal/repositories"
)

const (
	reviewIDPrefix      = "rev_"
	reviewScanPageSize  = 50
	reviewScanMaxPages  = 20
	reviewMinRating     = 1
	reviewMaxRating     = 5
	reviewMaxTextLength = 4000
)

var (
	// ErrReviewInvalidInput signals malformed submission data such as an
	// out-of-range rating.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotEligible indicates the user has no delivered order containing
	// the product, or is blocked from reviewing.
	ErrReviewNotEligible = errors.New("review: not eligible")
	// ErrReviewDuplicate indicates a review already exists for the (user, product) pair.
	ErrReviewDuplicate = errors.New("review: duplicate")
)

// ReviewServiceDeps bundles collaborators required to construct the review service.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Orders      repositories.OrderRepository
	Users       repositories.UserRepository
	Clock       func() time.Time
	IDGenerator func() string
	Sanitizer   func(string) string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	reviews  repositories.ReviewRepository
	orders   repositories.OrderRepository
	users    repositories.UserRepository
	clock    func() time.Time
	newID    func() string
	sanitize func(string) string
	logger   func(context.Context, string, map[string]any)
}

// NewReviewService wires the eligibility gate and review persistence.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = strings.TrimSpace
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reviewService{
		reviews:  deps.Reviews,
		orders:   deps.Orders,
		users:    deps.Users,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		sanitize: sanitize,
		logger:   logger,
	}, nil
}

// CanReview reports whether the user may review the product: the account is
// not blocked or deleted, some delivered order of theirs contains the product,
// and no review exists yet for the pair. The product is matched against order
// snapshots under both its hyphenated and space-separated forms.
func (s *reviewService) CanReview(ctx context.Context, userID string, productName string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, fmt.Errorf("%w: user id is required", ErrReviewInvalidInput)
	}
	variants := textutil.ProductIDVariants(productName)
	if len(variants) == 0 {
		return false, fmt.Errorf("%w: product name is required", ErrReviewInvalidInput)
	}

	blocked, err := s.userBlocked(ctx, userID)
	if err != nil {
		return false, err
	}
	if blocked {
		return false, nil
	}

	delivered, err := s.hasDeliveredOrderWithProduct(ctx, userID, variants)
	if err != nil {
		return false, err
	}
	if !delivered {
		return false, nil
	}

	exists, err := s.reviewExists(ctx, userID, variants[0])
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// Submit validates the rating, runs the eligibility gate, and inserts the
// review. Uniqueness is enforced again by the repository write, so two racing
// submissions cannot both land.
func (s *reviewService) Submit(ctx context.Context, cmd SubmitReviewCommand) (Review, error) {
	if cmd.Rating < reviewMinRating || cmd.Rating > reviewMaxRating {
		return Review{}, fmt.Errorf("%w: rating must be between %d and %d", ErrReviewInvalidInput, reviewMinRating, reviewMaxRating)
	}

	eligible, err := s.CanReview(ctx, cmd.UserID, cmd.ProductName)
	if err != nil {
		return Review{}, err
	}
	if !eligible {
		exists, existsErr := s.reviewExists(ctx, strings.TrimSpace(cmd.UserID), textutil.NormalizeProductID(cmd.ProductName))
		if existsErr == nil && exists {
			return Review{}, ErrReviewDuplicate
		}
		return Review{}, ErrReviewNotEligible
	}

	text := truncateText(s.sanitize(cmd.Text), reviewMaxTextLength)

	review := Review{
		ID:          reviewIDPrefix + s.newID(),
		UserID:      strings.TrimSpace(cmd.UserID),
		ProductID:   textutil.NormalizeProductID(cmd.ProductName),
		ProductName: strings.TrimSpace(cmd.ProductName),
		Rating:      cmd.Rating,
		Text:        text,
		CreatedAt:   s.clock(),
	}

	saved, err := s.reviews.Insert(ctx, review)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return Review{}, ErrReviewDuplicate
		}
		return Review{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "review.created", map[string]any{
		"review":  saved.ID,
		"user":    saved.UserID,
		"product": saved.ProductID,
		"rating":  saved.Rating,
	})
	return saved, nil
}

// ListByProduct returns reviews for the product, newest first.
func (s *reviewService) ListByProduct(ctx context.Context, productName string, pager Pagination) (domain.CursorPage[Review], error) {
	productID := textutil.NormalizeProductID(productName)
	if productID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: product name is required", ErrReviewInvalidInput)
	}
	page, err := s.reviews.ListByProduct(ctx, productID, pager)
	if err != nil {
		return domain.CursorPage[Review]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *reviewService) userBlocked(ctx context.Context, userID string) (bool, error) {
	if s.users == nil {
		return false, nil
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			// No profile yet means no block flag either.
			return false, nil
		}
		return false, s.mapRepositoryError(err)
	}
	return user.BlockedFromReviewing || user.Deleted(), nil
}

func (s *reviewService) hasDeliveredOrderWithProduct(ctx context.Context, userID string, variants []string) (bool, error) {
	delivered := domain.OrderStatusDelivered
	filter := repositories.OrderListFilter{
		Status:     []string{string(delivered)},
		Pagination: domain.Pagination{PageSize: reviewScanPageSize},
	}

	for page := 0; page < reviewScanMaxPages; page++ {
		result, err := s.orders.ListByUser(ctx, userID, filter)
		if err != nil {
			return false, s.mapRepositoryError(err)
		}
		for _, order := range result.Items {
			if order.Status != delivered {
				continue
			}
			if order.ContainsProduct(variants...) {
				return true, nil
			}
		}
		if result.NextPageToken == "" {
			return false, nil
		}
		filter.Pagination.PageToken = result.NextPageToken
	}
	return false, nil
}

func (s *reviewService) reviewExists(ctx context.Context, userID string, productID string) (bool, error) {
	_, err := s.reviews.FindByUserAndProduct(ctx, userID, productID)
	if err == nil {
		return true, nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return false, nil
	}
	return false, s.mapRepositoryError(err)
}

// truncateText caps the stored text at max bytes without splitting a rune.
func truncateText(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func (s *reviewService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrReviewDuplicate, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("review: repository unavailable: %w", err)
		}
	}
	return err
}
