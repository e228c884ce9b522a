package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/snackworks/api/internal/platform/auth"
)

const (
	defaultDownloadExpiry = 5 * time.Minute
	// V4 signed URLs cannot outlive seven days; the bucket stays private
	// so invoice links must expire.
	maxDownloadExpiry = 7 * 24 * time.Hour
)

var (
	errNoSigner      = errors.New("storage: signer is required")
	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidObject = errors.New("storage: object name is required")
	errExpiryTooLong = errors.New("storage: expiry exceeds permitted maximum")
)

// Client issues V4 signed download URLs for objects in the invoice bucket.
type Client struct {
	signer Signer
	now    func() time.Time
}

// ClientOption customises client behaviour.
type ClientOption func(*Client)

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewClient constructs a signed URL client backed by the given signer.
func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}

	client := &Client{signer: signer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// DownloadOptions control expiry, response shaping, and access control for
// a signed download URL.
type DownloadOptions struct {
	ExpiresIn    time.Duration
	Disposition  string
	ResponseType string

	// OwnerID and Identity gate access to user-owned objects. AllowAnonymous
	// skips the check for links embedded in outbound email.
	OwnerID        string
	Identity       *auth.Identity
	AllowAnonymous bool
}

// SignedURLResult describes the generated signed URL.
type SignedURLResult struct {
	URL       string
	ExpiresAt time.Time
}

// SignedDownloadURL creates a time-limited GET URL for the object.
func (c *Client) SignedDownloadURL(ctx context.Context, bucket, object string, opts DownloadOptions) (SignedURLResult, error) {
	if c == nil {
		return SignedURLResult{}, errNoSigner
	}
	if ctx == nil {
		return SignedURLResult{}, errors.New("storage: context is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return SignedURLResult{}, errInvalidBucket
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}

	expiry := opts.ExpiresIn
	if expiry <= 0 {
		expiry = defaultDownloadExpiry
	}
	if expiry > maxDownloadExpiry {
		return SignedURLResult{}, errExpiryTooLong
	}

	if err := AuthorizeDownload(opts.Identity, opts.OwnerID, opts.AllowAnonymous); err != nil {
		return SignedURLResult{}, err
	}

	query := url.Values{}
	if opts.Disposition != "" {
		query.Set("response-content-disposition", opts.Disposition)
	}
	if opts.ResponseType != "" {
		query.Set("response-content-type", opts.ResponseType)
	}

	expiresAt := c.now().Add(expiry)
	signedURL, err := storage.SignedURL(bucket, object, &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        expiresAt,
		QueryParameters: func() url.Values {
			if len(query) == 0 {
				return nil
			}
			return query
		}(),
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign download url: %w", err)
	}

	return SignedURLResult{URL: signedURL, ExpiresAt: expiresAt}, nil
}
