package gateway

import (
	"fmt"
	"time"
)

// Config holds payment gateway configuration
type Config struct {
	Provider      string // "stripe" or "mock"
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration // per call, retries included
	MaxRetries    uint64        // transient failures only
}

// New builds the gateway named by cfg.Provider.
func New(cfg Config) (Gateway, error) {
	switch cfg.Provider {
	case "stripe":
		if cfg.SecretKey == "" {
			return nil, fmt.Errorf("stripe gateway requires a secret key")
		}
		return NewStripeGateway(cfg, nil), nil
	case "mock", "":
		return NewMockGateway(cfg.WebhookSecret), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}
