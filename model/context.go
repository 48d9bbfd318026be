package model

import (
	"context"
	"slices"
)

// RequestContext is the operator behind a screen request: who they are, as
// read from the verified token, and the credentials their screens forward
// to the backend. Treat it as read-only once stored in a context.
type RequestContext struct {
	SubjectID   string
	Username    string
	DisplayName string
	Email       string
	Roles       []string
	Claims      map[string]any

	// Forwarded verbatim on backend calls made for this operator.
	CSRFToken     string
	SessionCookie string
	CorrelationID string

	TraceID string
	Locale  string
}

func (rc *RequestContext) HasRole(role string) bool {
	return slices.Contains(rc.Roles, role)
}

// OperatorName is what attendant fields are prefilled with.
func (rc *RequestContext) OperatorName() string {
	if rc.DisplayName != "" {
		return rc.DisplayName
	}
	return rc.Username
}

type requestContextKey struct{}

func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rctx)
}

// RequestContextFrom returns the operator stored in ctx, or nil.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rctx
}
