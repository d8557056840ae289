package ingest

import (
	"context"
	"time"
)

// RequestTimeout bounds a single header or chunk request to a peer. The
// reference client polls for up to the same 10-second budget before
// giving up on one request.
const RequestTimeout = 10 * time.Second

func withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, RequestTimeout)
}
