package remote

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/R3E-Network/hostbridge/internal/engine/events"
	enginemetrics "github.com/R3E-Network/hostbridge/internal/engine/metrics"
	"github.com/R3E-Network/hostbridge/pkg/logger"
)

const (
	// DefaultPollInterval is the delay between namespace lookups.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultMaxAttempts bounds lookups per object; with the default
	// interval an absent object fails after about five seconds.
	DefaultMaxAttempts = 50
)

type settings struct {
	log     *logger.Logger
	events  events.EventLogger
	metrics enginemetrics.MetricsCollector

	pollInterval time.Duration
	maxAttempts  int
	policy       func() backoff.BackOff
}

// Option configures a Registry or Wrapper.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *settings) {
		s.log = l
	}
}

// WithEventLogger sets the diagnostics event log.
func WithEventLogger(el events.EventLogger) Option {
	return func(s *settings) {
		s.events = el
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc enginemetrics.MetricsCollector) Option {
	return func(s *settings) {
		s.metrics = mc
	}
}

// WithPollInterval sets the delay between lookups.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		s.pollInterval = d
	}
}

// WithMaxAttempts bounds the number of lookups per object.
func WithMaxAttempts(n int) Option {
	return func(s *settings) {
		s.maxAttempts = n
	}
}

// WithBackOff replaces the polling policy. newPolicy is called once per
// object; its delays are scheduled on the registry's Scheduler and
// backoff.Stop ends polling.
func WithBackOff(newPolicy func() backoff.BackOff) Option {
	return func(s *settings) {
		s.policy = newPolicy
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewDefault("remote")
	}
	if s.events == nil {
		s.events = events.NoOpLogger{}
	}
	if s.metrics == nil {
		s.metrics = enginemetrics.NewNoOpCollector()
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.policy == nil {
		s.policy = ConstantPolicy(s.pollInterval, s.maxAttempts)
	}
	return s
}

// ConstantPolicy polls every interval for at most maxAttempts lookups.
func ConstantPolicy(interval time.Duration, maxAttempts int) func() backoff.BackOff {
	retries := uint64(0)
	if maxAttempts > 1 {
		retries = uint64(maxAttempts - 1)
	}
	return func() backoff.BackOff {
		b := backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), retries)
		b.Reset()
		return b
	}
}

// ExponentialPolicy starts at initial and multiplies the delay after each
// miss, capped at maxInterval, for at most maxAttempts lookups.
func ExponentialPolicy(initial time.Duration, multiplier float64, maxInterval time.Duration, maxAttempts int) func() backoff.BackOff {
	retries := uint64(0)
	if maxAttempts > 1 {
		retries = uint64(maxAttempts - 1)
	}
	if maxInterval < initial {
		maxInterval = initial
	}
	return func() backoff.BackOff {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = initial
		eb.Multiplier = multiplier
		eb.RandomizationFactor = 0
		eb.MaxInterval = maxInterval
		eb.MaxElapsedTime = 0
		b := backoff.WithMaxRetries(eb, retries)
		b.Reset()
		return b
	}
}
