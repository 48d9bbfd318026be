package backend

import (
	"context"
	"net/http"
	"strings"

	"github.com/pitabwire/callcenter/model"
)

// Credentials are forwarded to the backend on every request.
type Credentials struct {
	CSRFToken     string
	SessionCookie string
	CorrelationID string
}

// CredentialsProvider supplies the credentials for the request in ctx.
type CredentialsProvider interface {
	Credentials(ctx context.Context) Credentials
}

// RequestCredentials forwards the caller's CSRF token and session cookie from
// the request context, falling back to a configured token.
type RequestCredentials struct {
	FallbackCSRFToken string
}

// Credentials implements CredentialsProvider.
func (p RequestCredentials) Credentials(ctx context.Context) Credentials {
	c := Credentials{CSRFToken: p.FallbackCSRFToken}
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		if rctx.CSRFToken != "" {
			c.CSRFToken = rctx.CSRFToken
		}
		c.SessionCookie = rctx.SessionCookie
		c.CorrelationID = rctx.CorrelationID
	}
	return c
}

// StaticCredentials always returns the same credentials.
type StaticCredentials Credentials

// Credentials implements CredentialsProvider.
func (s StaticCredentials) Credentials(context.Context) Credentials {
	return Credentials(s)
}

func (c Credentials) apply(h http.Header) {
	if c.CSRFToken != "" {
		h.Set("X-CSRFToken", sanitizeHeader(c.CSRFToken))
	}
	if c.SessionCookie != "" {
		h.Set("Cookie", sanitizeHeader(c.SessionCookie))
	}
	if c.CorrelationID != "" {
		h.Set("X-Correlation-Id", sanitizeHeader(c.CorrelationID))
	}
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
