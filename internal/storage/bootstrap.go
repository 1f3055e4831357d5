package storage

import (
	"context"
	"log/slog"
	"time"
)

// BootstrapOptions selects which boot steps run.
type BootstrapOptions struct {
	CreateBucket bool
	PublicPolicy bool
	Timeout      time.Duration
}

// Bootstrap runs the boot-time bucket steps. Failures are logged and
// swallowed: serving goes through the proxy and does not depend on either
// step having succeeded. It reports whether every requested step succeeded.
func Bootstrap(ctx context.Context, b Bucket, opts BootstrapOptions, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ok := true
	if opts.CreateBucket {
		if err := b.EnsureBucket(ctx); err != nil {
			logger.Error("storage: ensure bucket failed", "err", err)
			ok = false
		} else {
			logger.Info("storage: bucket ready")
		}
	}
	if opts.PublicPolicy {
		if err := b.SetPublicReadPolicy(ctx); err != nil {
			logger.Error("storage: set public read policy failed", "err", err)
			ok = false
		} else {
			logger.Info("storage: public read policy applied")
		}
	}
	return ok
}
