package store

import (
	"time"

	"github.com/joeycumines/logiface"
)

// config holds Context-construction-time knobs (spec.md §6
// "Configuration", SPEC_FULL.md §2.3).
type config struct {
	autoBatchLimit   int
	defaultDeadline  time.Duration
	cachePolicy      func(*Key) bool
	remoteCachePolicy func(*Key) bool
	remoteCacheTTL   func(*Key) time.Duration
	logger           *logiface.Logger[logiface.Event]
}

// Option configures a Context at construction time, following the
// teacher's functional-options idiom (DESIGN.md "Options").
type Option interface{ apply(*config) }

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithAutoBatchLimit sets the per-bucket forced-flush threshold for every
// AutoBatcher the Context owns. Default 100 (spec.md §6).
func WithAutoBatchLimit(n int) Option {
	return optionFunc(func(c *config) { c.autoBatchLimit = n })
}

// WithDefaultDeadline sets the deadline propagated to Stub calls that don't
// specify one explicitly.
func WithDefaultDeadline(d time.Duration) Option {
	return optionFunc(func(c *config) { c.defaultDeadline = d })
}

// WithCachePolicy overrides the default (always true) session-cache
// eligibility predicate.
func WithCachePolicy(fn func(*Key) bool) Option {
	return optionFunc(func(c *config) { c.cachePolicy = fn })
}

// WithRemoteCachePolicy overrides the default (always true) remote-cache
// eligibility predicate.
func WithRemoteCachePolicy(fn func(*Key) bool) Option {
	return optionFunc(func(c *config) { c.remoteCachePolicy = fn })
}

// WithRemoteCacheTTLPolicy overrides the default (0) per-key duration that
// Put passes to RemoteCache.DeleteKey as the grace period when it
// invalidates a key. Context writes no values into the remote cache.
func WithRemoteCacheTTLPolicy(fn func(*Key) time.Duration) Option {
	return optionFunc(func(c *config) { c.remoteCacheTTL = fn })
}

// WithLogger attaches a structured logger (SPEC_FULL.md §2.1).
func WithLogger(l *logiface.Logger[logiface.Event]) Option {
	return optionFunc(func(c *config) { c.logger = l })
}

func resolveOptions(opts []Option) *config {
	c := &config{
		autoBatchLimit:    100,
		cachePolicy:       func(*Key) bool { return true },
		remoteCachePolicy: func(*Key) bool { return true },
		remoteCacheTTL:    func(*Key) time.Duration { return 0 },
	}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}

// GetCallOptions are the per-call options accepted by Context.Get
// (spec.md §4.3 "get(key, options={useCache, useRemoteCache, deadline,
// readPolicy})").
type GetCallOptions struct {
	UseCache       *bool // nil -> defer to cachePolicy
	UseRemoteCache bool
	Deadline       time.Duration
}

type PutCallOptions struct {
	UseRemoteCache bool
	Deadline       time.Duration
}

type DeleteCallOptions struct {
	UseRemoteCache bool
	Deadline       time.Duration
}

// TransactionOptions configures Context.Transaction. EntityGroup is
// mandatory (DESIGN.md Open Question decision #2 / SPEC_FULL.md §4.1 —
// spec.md §9 flags implicit inference as a latent foot-gun).
type TransactionOptions struct {
	EntityGroup *Key
	Retries     int
	ReadOnly    bool
}
