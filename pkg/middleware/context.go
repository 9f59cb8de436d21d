package middleware

import (
	"context"
	"time"
)

func contextWithExpiry(ctx context.Context, expires time.Time) context.Context {
	return context.WithValue(ctx, tokenExpiryKey, expires)
}

// TokenExpiry returns when the caller's access token stops being valid.
func TokenExpiry(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(tokenExpiryKey).(time.Time)
	return t, ok
}
