package marketplace

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"dropsync-api/internal/domain"
)

// Session bundles one account's API client with its batching updater.
// Sessions are cheap to build per run; the rate limiter is the long-lived,
// shared piece.
type Session struct {
	*Client
	*Updater
}

// SessionConfig carries the knobs a session needs beyond the client config.
type SessionConfig struct {
	Client       Config
	BatchSize    int
	MaxRetries   int
	RetryBackoff time.Duration
}

// NewSession builds a session for one credential bundle on the shared
// limiter.
func NewSession(cfg SessionConfig, creds domain.Credentials, limiter *rate.Limiter, log *logrus.Logger) *Session {
	client := NewClient(cfg.Client, creds, limiter)
	return &Session{
		Client:  client,
		Updater: NewUpdater(client, cfg.BatchSize, cfg.MaxRetries, cfg.RetryBackoff, log),
	}
}
