package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++

	if err, ok := f.errors[name]; ok && err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}

func writeFallbackFile(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(lines), 0o600); err != nil {
		t.Fatalf("write fallback file: %v", err)
	}
	return path
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	resource := "projects/snackworks-prod/secrets/stripe_api_key/versions/latest"
	client.values[resource] = "sk_live_abc"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("snackworks-prod"),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
		if err != nil {
			t.Fatalf("Resolve call %d: %v", i, err)
		}
		if got != "sk_live_abc" {
			t.Fatalf("Resolve call %d = %q, want sk_live_abc", i, got)
		}
	}

	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected one remote fetch, got %d", calls)
	}
}

func TestResolveFallsBackWhenAccessDenied(t *testing.T) {
	ctx := context.Background()

	fallbackPath := writeFallbackFile(t, "secret://admin_hmac_secret=local-admin-secret\n")

	client := newFakeSecretClient()
	client.errors["projects/snackworks-prod/secrets/admin_hmac_secret/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("snackworks-prod"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://admin_hmac_secret")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "local-admin-secret" {
		t.Fatalf("Resolve = %q, want local-admin-secret", got)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()

	fallbackPath := writeFallbackFile(t, "secret://stripe_webhook_secret=whsec_local\n")

	client := newFakeSecretClient()
	client.errors["projects/snackworks-prod/secrets/stripe_webhook_secret/versions/latest"] = status.Error(codes.NotFound, "missing")

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("snackworks-prod"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	if _, err = fetcher.Resolve(ctx, "secret://stripe_webhook_secret"); err == nil {
		t.Fatal("expected error when secret is missing remotely")
	}
}

func TestResolveUsesVersionPins(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	pinned := "projects/snackworks-prod/secrets/storage_signer_key/versions/7"
	client.values[pinned] = "signer-key-v7"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("snackworks-prod"),
		WithVersionPins(map[string]string{
			"secret://storage_signer_key": "7",
		}),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://storage_signer_key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "signer-key-v7" {
		t.Fatalf("Resolve = %q, want signer-key-v7", got)
	}
	if calls := client.callCount(pinned); calls != 1 {
		t.Fatalf("expected fetch of pinned version, got %d calls", calls)
	}
}

func TestResolveEnvScopedPinWins(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	client.values["projects/snackworks-staging/secrets/stripe_api_key/versions/3"] = "sk_test_v3"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithEnvironment("staging"),
		WithProjectMap(map[string]string{"staging": "snackworks-staging"}),
		WithVersionPins(map[string]string{
			"secret://stripe_api_key":         "9",
			"staging:secret://stripe_api_key": "3",
		}),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "sk_test_v3" {
		t.Fatalf("Resolve = %q, want sk_test_v3", got)
	}
}

func TestResolveExplicitVersionAndProjectOverride(t *testing.T) {
	ctx := context.Background()

	client := newFakeSecretClient()
	client.values["projects/shared-secrets/secrets/stripe_api_key/versions/2"] = "sk_shared_v2"

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("snackworks-prod"),
	)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://stripe_api_key?project=shared-secrets&version=2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "sk_shared_v2" {
		t.Fatalf("Resolve = %q, want sk_shared_v2", got)
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	ctx := context.Background()

	originalFactory := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() {
		secretManagerClientFactory = originalFactory
	})

	fallbackPath := writeFallbackFile(t, "# local dev secrets\nsecret://stripe_api_key=sk_test_local\n\nsecret://admin_hmac_secret=dev-admin\n")

	fetcher, err := NewFetcher(ctx, WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(ctx, "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if value != "sk_test_local" {
		t.Fatalf("Resolve = %q, want sk_test_local", value)
	}

	value, err = fetcher.Resolve(ctx, "secret://admin_hmac_secret")
	if err != nil {
		t.Fatalf("Resolve admin secret: %v", err)
	}
	if value != "dev-admin" {
		t.Fatalf("Resolve = %q, want dev-admin", value)
	}
}

func TestResolveRejectsMalformedReference(t *testing.T) {
	ctx := context.Background()

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(newFakeSecretClient()))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	for _, ref := range []string{"", "stripe_api_key", "vault://stripe_api_key", "secret://"} {
		if _, err := fetcher.Resolve(ctx, ref); err == nil {
			t.Fatalf("expected error for reference %q", ref)
		}
	}
}
