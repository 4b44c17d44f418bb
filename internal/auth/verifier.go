// Package auth verifies the bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized wraps every verification failure.
var ErrUnauthorized = errors.New("invalid or expired token")

// DefaultAudience is the audience the identity provider stamps on user tokens.
const DefaultAudience = "authenticated"

// Claims are the token claims the service relies on. Subject is the stable
// user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// VerifierOptions configures a Verifier. At least one of Keys or Secret must
// be set.
type VerifierOptions struct {
	// Keys verifies ES256 and RS256 tokens.
	Keys *KeySet
	// Secret verifies HS256 tokens.
	Secret   []byte
	Audience string
	Issuer   string
	Leeway   time.Duration
}

// Verifier checks token signatures and claims.
type Verifier struct {
	keys   *KeySet
	secret []byte
	parser *jwt.Parser
}

// NewVerifier builds a verifier from opts.
func NewVerifier(opts VerifierOptions) (*Verifier, error) {
	var methods []string
	if opts.Keys != nil {
		methods = append(methods, jwt.SigningMethodES256.Alg(), jwt.SigningMethodRS256.Alg())
	}
	if len(opts.Secret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if len(methods) == 0 {
		return nil, errors.New("auth: no verification keys configured")
	}

	audience := opts.Audience
	if audience == "" {
		audience = DefaultAudience
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}

	return &Verifier{
		keys:   opts.Keys,
		secret: opts.Secret,
		parser: jwt.NewParser(parserOpts...),
	}, nil
}

// Verify parses token and returns its claims. Malformed, expired, wrongly
// addressed and unverifiable tokens all return an error wrapping
// ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodECDSA, *jwt.SigningMethodRSA:
			return v.keys.Keyfunc(ctx)(t)
		case *jwt.SigningMethodHMAC:
			return v.secret, nil
		default:
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
