package middleware

import "context"

type contextKey string

const (
	ctxSessionID contextKey = "session_id"
	ctxUserID    contextKey = "user_id"
	ctxEmail     contextKey = "buyer_email"
	ctxFirstName contextKey = "buyer_first_name"
	ctxLastName  contextKey = "buyer_last_name"
)

func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSessionID).(string); ok {
		return v
	}
	return ""
}

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func BuyerEmailFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxEmail).(string); ok {
		return v
	}
	return ""
}

func BuyerNameFromContext(ctx context.Context) (first, last string) {
	if ctx == nil {
		return "", ""
	}
	if v, ok := ctx.Value(ctxFirstName).(string); ok {
		first = v
	}
	if v, ok := ctx.Value(ctxLastName).(string); ok {
		last = v
	}
	return first, last
}

// WithSessionID injects the visitor session identifier into the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSessionID, sessionID)
}

// WithBuyer injects the recognized buyer's identity into the context.
func WithBuyer(ctx context.Context, userID, email, firstName, lastName string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxEmail, email)
	ctx = context.WithValue(ctx, ctxFirstName, firstName)
	return context.WithValue(ctx, ctxLastName, lastName)
}
