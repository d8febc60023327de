package service

import (
	"context"
	"log/slog"
	"time"
)

// TokenJanitor periodically deletes refresh tokens whose expiry has passed.
// Expired rows are already unusable; this only keeps the table from growing.
type TokenJanitor struct {
	auth     *AuthService
	interval time.Duration
	logger   *slog.Logger
}

func NewTokenJanitor(auth *AuthService, interval time.Duration, logger *slog.Logger) *TokenJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &TokenJanitor{auth: auth, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (j *TokenJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := j.auth.CleanupExpired()
			if err != nil {
				j.logger.Warn("refresh token sweep failed", slog.String("error", err.Error()))
				continue
			}
			if removed > 0 {
				j.logger.Info("expired refresh tokens removed", slog.Int64("count", removed))
			}
		}
	}
}
