package transport

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitabwire/callcenter/internal/config"
	"github.com/pitabwire/callcenter/model"
)

// tokenLeeway absorbs clock drift between the identity provider and us.
const tokenLeeway = 30 * time.Second

// tokenFailures maps verification errors to the message the operator sees,
// first match wins.
var tokenFailures = []struct {
	err error
	msg string
}{
	{jwt.ErrTokenExpired, "Token expired"},
	{jwt.ErrTokenInvalidIssuer, "Invalid token issuer"},
	{jwt.ErrTokenInvalidAudience, "Invalid token audience"},
	{jwt.ErrTokenSignatureInvalid, "Invalid token signature"},
	{jwt.ErrTokenRequiredClaimMissing, "Token is missing a required claim"},
}

type tokenVerifier struct {
	parser *jwt.Parser
	secret []byte
	cookie string
}

func newTokenVerifier(cfg config.IdentityConfig) *tokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &tokenVerifier{
		parser: jwt.NewParser(opts...),
		secret: []byte(cfg.Secret),
		cookie: cfg.TokenCookie,
	}
}

// bearer finds the raw token: the Authorization header, or the configured
// cookie when the header is absent.
func (v *tokenVerifier) bearer(r *http.Request) (string, *model.ErrorEnvelope) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if v.cookie != "" {
			if c, err := r.Cookie(v.cookie); err == nil && c.Value != "" {
				return c.Value, nil
			}
		}
		return "", model.NewUnauthorizedError("Missing authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", model.NewUnauthorizedError("Invalid authorization header format")
	}
	return token, nil
}

func (v *tokenVerifier) verify(raw string) (map[string]any, *model.ErrorEnvelope) {
	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, model.NewUnauthorizedError(tokenFailure(err))
	}
	if !token.Valid {
		return nil, model.NewUnauthorizedError("Invalid token")
	}
	return claims, nil
}

func tokenFailure(err error) string {
	// jwt has no sentinel for an algorithm outside WithValidMethods.
	if strings.Contains(err.Error(), "signing method") {
		return "Disallowed signing algorithm"
	}
	for _, f := range tokenFailures {
		if errors.Is(err, f.err) {
			return f.msg
		}
	}
	return "Invalid token"
}

// JWTAuthenticator rejects requests without a valid HS256 operator token and
// stores the verified claims for OperatorContext. Issuer and audience are
// checked only when configured.
func JWTAuthenticator(cfg config.IdentityConfig) func(http.Handler) http.Handler {
	v := newTokenVerifier(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, fail := v.bearer(r)
			if fail != nil {
				WriteError(w, fail)
				return
			}
			claims, fail := v.verify(raw)
			if fail != nil {
				WriteError(w, fail)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}
