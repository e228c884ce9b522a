package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/snackworks/api/internal/domain"
	pfirestore "github.com/snackworks/api/internal/platform/firestore"
	"github.com/snackworks/api/internal/repositories"
)

const reviewCollection = "reviews"

// ReviewRepository persists product reviews. The document ID is derived from
// the (user, product) pair, so the one-review-per-product invariant is
// enforced by the create itself rather than a racy lookup.
type ReviewRepository struct {
	base     *pfirestore.BaseRepository[reviewDocument]
	provider *pfirestore.Provider
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[reviewDocument](provider, reviewCollection)
	return &ReviewRepository{base: base, provider: provider}, nil
}

// Insert creates the review. A concurrent insert for the same (user, product)
// pair loses the race and surfaces as a conflict error.
func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if r == nil || r.provider == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	userID := strings.TrimSpace(review.UserID)
	productID := strings.TrimSpace(review.ProductID)
	if userID == "" || productID == "" {
		return domain.Review{}, errors.New("review repository: user id and product id are required")
	}

	docID := reviewDocID(userID, productID)
	doc := reviewDocument{
		ReviewID:    strings.TrimSpace(review.ID),
		UserID:      userID,
		ProductID:   productID,
		ProductName: strings.TrimSpace(review.ProductName),
		OrderID:     strings.TrimSpace(review.OrderID),
		Rating:      review.Rating,
		Text:        review.Text,
		CreatedAt:   review.CreatedAt.UTC(),
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, docID)
		if err != nil {
			return err
		}
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("reviews.insert", err)
		}
		return nil
	})
	if err != nil {
		return domain.Review{}, err
	}

	saved := review
	saved.UserID = userID
	saved.ProductID = productID
	return saved, nil
}

// FindByUserAndProduct loads the review for the (user, product) pair.
func (r *ReviewRepository) FindByUserAndProduct(ctx context.Context, userID string, productID string) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return domain.Review{}, errors.New("review repository: user id and product id are required")
	}
	doc, err := r.base.Get(ctx, reviewDocID(userID, productID))
	if err != nil {
		return domain.Review{}, err
	}
	return toDomainReview(doc.Data), nil
}

// ListByProduct returns reviews for a product, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	return r.list(ctx, "productId", strings.TrimSpace(productID), pager)
}

// ListByUser returns a user's reviews, newest first.
func (r *ReviewRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	return r.list(ctx, "userId", strings.TrimSpace(userID), pager)
}

func (r *ReviewRepository) list(ctx context.Context, field string, value string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository not initialised")
	}
	if value == "" {
		return domain.CursorPage[domain.Review]{}, fmt.Errorf("review repository: %s is required", field)
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("review repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where(field, "==", value).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		valueDocs = valueDocs[:limit]
		last := valueDocs[len(valueDocs)-1]
		token, err := encodeOrderListToken(last.Data.CreatedAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("review repository: encode page token: %w", err)
		}
		nextToken = token
	}

	items := make([]domain.Review, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, toDomainReview(doc.Data))
	}
	return domain.CursorPage[domain.Review]{Items: items, NextPageToken: nextToken}, nil
}

func reviewDocID(userID string, productID string) string {
	return fmt.Sprintf("%s__%s", userID, productID)
}

type reviewDocument struct {
	ReviewID    string    `firestore:"reviewId"`
	UserID      string    `firestore:"userId"`
	ProductID   string    `firestore:"productId"`
	ProductName string    `firestore:"productName"`
	OrderID     string    `firestore:"orderId,omitempty"`
	Rating      int       `firestore:"rating"`
	Text        string    `firestore:"text,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func toDomainReview(doc reviewDocument) domain.Review {
	return domain.Review{
		ID:          doc.ReviewID,
		UserID:      doc.UserID,
		ProductID:   doc.ProductID,
		ProductName: doc.ProductName,
		OrderID:     doc.OrderID,
		Rating:      doc.Rating,
		Text:        doc.Text,
		CreatedAt:   doc.CreatedAt,
	}
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)
