package v1

import (
	"github.com/4thel00z/glance/internal"
	"github.com/sirupsen/logrus"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	scope    string
	provider string
	workers  int
	capture  CaptureMode
	logger   logrus.FieldLogger
	lookup   func(string) (string, bool)
	override func(*internal.ServiceOptions)
}

// WithScope forces a specific scope (global or project).
func WithScope(scope string) Option {
	return func(c *clientConfig) {
		c.scope = scope
	}
}

// WithProvider selects the answering backend, overriding config and AI_PROVIDER.
func WithProvider(name string) Option {
	return func(c *clientConfig) {
		c.provider = name
	}
}

// WithWorkers bounds how many asks and ingestions run at once.
func WithWorkers(n int) Option {
	return func(c *clientConfig) {
		c.workers = n
	}
}

// WithCaptureMode sets when Ask captures the screen.
func WithCaptureMode(mode CaptureMode) Option {
	return func(c *clientConfig) {
		c.capture = mode
	}
}

// WithLogger routes pipeline logs to logger. Logs are discarded by default.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithEnv replaces the environment lookup used for credentials and overrides.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(c *clientConfig) {
		c.lookup = lookup
	}
}

func withServiceOptions(fn func(*internal.ServiceOptions)) Option {
	return func(c *clientConfig) {
		c.override = fn
	}
}
