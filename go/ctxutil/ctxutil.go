// Package ctxutil has helpers for bounding the lifetime of contexts.
package ctxutil

import (
	"context"
	"strings"
	"time"

	"go.skia.org/culprit/go/metrics2"
	"go.skia.org/culprit/go/skerr"
	"go.skia.org/culprit/go/sklog"
)

// ConfirmContextHasDeadline reports whether ctx has a deadline. When it
// doesn't, the caller's stack is logged and culprit_ctx_missing_deadline is
// incremented, so SQL calls made without a timeout show up in monitoring.
func ConfirmContextHasDeadline(ctx context.Context) bool {
	if _, ok := ctx.Deadline(); ok {
		return true
	}
	var frames []string
	for _, st := range skerr.CallStack(10, 2) {
		frames = append(frames, st.String())
	}
	sklog.Errorf("ctx is missing deadline at %s", strings.Join(frames, " <- "))
	metrics2.GetCounter("culprit_ctx_missing_deadline").Inc(1)
	return false
}

// WithContextTimeout runs f with a child of ctx that expires after timeout.
func WithContextTimeout(ctx context.Context, timeout time.Duration, f func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return f(ctx)
}
