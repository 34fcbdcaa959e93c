package eventloop

import "github.com/joeycumines/logiface"

type loopConfig struct {
	logger *logiface.Logger[logiface.Event]
}

// Option configures a Loop at construction time.
type Option interface{ applyLoop(*loopConfig) }

type loopOptionFunc func(*loopConfig)

func (f loopOptionFunc) applyLoop(c *loopConfig) { f(c) }

// WithLogger attaches a structured logger; eventloop, store and remotecache
// each accept one via the same functional-option shape (autobatch takes a
// Config struct and no logger). A nil logger (the
// default) disables logging entirely.
func WithLogger(l *logiface.Logger[logiface.Event]) Option {
	return loopOptionFunc(func(c *loopConfig) { c.logger = l })
}

func resolveLoopOptions(opts []Option) *loopConfig {
	c := &loopConfig{}
	for _, o := range opts {
		o.applyLoop(c)
	}
	return c
}
