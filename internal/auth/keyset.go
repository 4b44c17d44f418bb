package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrKeyNotFound is returned when no key in the set matches a token.
var ErrKeyNotFound = errors.New("signing key not found")

// KeySetOptions configures a KeySet.
type KeySetOptions struct {
	URL string
	// TTL is how often the key set is fetched again in the background.
	TTL time.Duration
	// MinRefreshInterval rate-limits forced refreshes triggered by unknown
	// key ids.
	MinRefreshInterval time.Duration
	// HTTPTimeout bounds a single fetch.
	HTTPTimeout time.Duration
	Transport   http.RoundTripper
	Logger      *zap.Logger
	// OnRefresh, when set, is told about every fetch attempt.
	OnRefresh func(err error)
}

// KeySet caches the public keys published at a JWKS endpoint. Keys are
// refetched every TTL until Close.
type KeySet struct {
	storage jwkset.Storage
	keyfunc keyfunc.Keyfunc
	cancel  context.CancelFunc
}

// NewKeySet starts a key set for opts.URL. The first fetch happens here; when
// it fails the set starts empty and the next unknown kid triggers a retry.
func NewKeySet(ctx context.Context, opts KeySetOptions) (*KeySet, error) {
	if opts.URL == "" {
		return nil, errors.New("auth: jwks url is empty")
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.MinRefreshInterval <= 0 {
		opts.MinRefreshInterval = 30 * time.Second
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 10 * time.Second
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	logger := opts.Logger.With(zap.String("url", opts.URL))

	u, err := url.Parse(opts.URL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("jwks url: %w", err)
	}
	remote, err := jwkset.NewStorageFromHTTP(u, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Transport: refreshTransport{base: opts.Transport, onRefresh: opts.OnRefresh}},
		Ctx:                       ctx,
		HTTPTimeout:               opts.HTTPTimeout,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           opts.TTL,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Warn("jwks refresh failed", zap.Error(err))
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("jwks storage: %w", err)
	}

	storage, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{opts.URL: remote},
		RateLimitWaitMax:  opts.HTTPTimeout,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(opts.MinRefreshInterval), 1),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("jwks client: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{
		Ctx:          ctx,
		Storage:      storage,
		UseWhitelist: []jwkset.USE{jwkset.USE(""), jwkset.UseSig},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("jwks keyfunc: %w", err)
	}

	return &KeySet{storage: storage, keyfunc: kf, cancel: cancel}, nil
}

// Close stops background refreshes.
func (ks *KeySet) Close() {
	ks.cancel()
}

// Keyfunc resolves the verification key of a token by its kid. A token
// without a kid gets the first published key of the matching type.
func (ks *KeySet) Keyfunc(ctx context.Context) jwt.Keyfunc {
	byKid := ks.keyfunc.KeyfuncCtx(ctx)
	return func(t *jwt.Token) (interface{}, error) {
		if kid, _ := t.Header["kid"].(string); kid != "" {
			key, err := byKid(t)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
			}
			return key, nil
		}
		switch t.Method.(type) {
		case *jwt.SigningMethodECDSA:
			return ks.firstKey(ctx, jwkset.KtyEC)
		case *jwt.SigningMethodRSA:
			return ks.firstKey(ctx, jwkset.KtyRSA)
		default:
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
	}
}

func (ks *KeySet) firstKey(ctx context.Context, kty jwkset.KTY) (interface{}, error) {
	keys, err := ks.storage.KeyReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("jwks read: %w", err)
	}
	for _, k := range keys {
		m := k.Marshal()
		if m.KTY != kty || (m.USE != jwkset.USE("") && m.USE != jwkset.UseSig) {
			continue
		}
		return k.Key(), nil
	}
	return nil, ErrKeyNotFound
}

// refreshTransport reports every JWKS fetch to onRefresh.
type refreshTransport struct {
	base      http.RoundTripper
	onRefresh func(error)
}

func (t refreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if t.onRefresh == nil {
		return resp, err
	}
	switch {
	case err != nil:
		t.onRefresh(err)
	case resp.StatusCode != http.StatusOK:
		t.onRefresh(fmt.Errorf("jwks fetch: unexpected status %d", resp.StatusCode))
	default:
		t.onRefresh(nil)
	}
	return resp, err
}
