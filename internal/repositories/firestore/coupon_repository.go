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

const couponCollection = "coupons"

// CouponRepository persists coupon definitions keyed by uppercase code.
type CouponRepository struct {
	base     *pfirestore.BaseRepository[couponDocument]
	provider *pfirestore.Provider
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[couponDocument](provider, couponCollection)
	return &CouponRepository{base: base, provider: provider}, nil
}

// Insert creates the coupon document, failing with a conflict when the code
// already exists.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.provider == nil {
		return errors.New("coupon repository not initialised")
	}
	code := couponDocID(coupon.Code)
	if code == "" {
		return errors.New("coupon repository: coupon code is required")
	}
	doc := fromDomainCoupon(coupon)
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, code)
		if err != nil {
			return err
		}
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("coupons.insert", err)
		}
		return nil
	})
}

// Update overwrites the coupon document.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	code := couponDocID(coupon.Code)
	if code == "" {
		return errors.New("coupon repository: coupon code is required")
	}
	_, err := r.base.Set(ctx, code, fromDomainCoupon(coupon))
	return err
}

// FindByCode loads the coupon for the given code. Lookup is case-insensitive
// because document IDs are the uppercase code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	id := couponDocID(code)
	if id == "" {
		return domain.Coupon{}, errors.New("coupon repository: coupon code is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Coupon{}, err
	}
	return toDomainCoupon(doc.ID, doc.Data), nil
}

// List returns coupons ordered by code.
func (r *CouponRepository) List(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Coupon], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Coupon]{}, errors.New("coupon repository not initialised")
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}
	startAfter := strings.TrimSpace(pager.PageToken)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy(firestore.DocumentID, firestore.Asc)
		if startAfter != "" {
			q = q.StartAfter(startAfter)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Coupon]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		nextToken = valueDocs[len(valueDocs)-1].ID
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Coupon, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, toDomainCoupon(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Coupon]{Items: items, NextPageToken: nextToken}, nil
}

func couponDocID(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type couponDocument struct {
	DiscountType  string    `firestore:"discountType"`
	DiscountValue int64     `firestore:"discountValue"`
	Active        bool      `firestore:"active"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func fromDomainCoupon(coupon domain.Coupon) couponDocument {
	return couponDocument{
		DiscountType:  string(coupon.DiscountType),
		DiscountValue: coupon.DiscountValue,
		Active:        coupon.Active,
		CreatedAt:     coupon.CreatedAt.UTC(),
		UpdatedAt:     coupon.UpdatedAt.UTC(),
	}
}

func toDomainCoupon(code string, doc couponDocument) domain.Coupon {
	return domain.Coupon{
		Code:          code,
		DiscountType:  domain.DiscountType(doc.DiscountType),
		DiscountValue: doc.DiscountValue,
		Active:        doc.Active,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)
