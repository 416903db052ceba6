package external

import (
	"time"

	"go.uber.org/zap"
)

type ClientOptions struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	// RequestsPerMinute throttles outgoing calls; zero leaves them unthrottled.
	RequestsPerMinute int
	Logger            *zap.Logger
}

func (o ClientOptions) withDefaults(baseURL string) ClientOptions {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
