package rope

import (
	"log"
	"os"
	"runtime"
	"sync"
)

var defaultLogger = log.New(os.Stderr, "rope: ", log.LstdFlags)

// logged holds the warnings already written, keyed by logger and message, so
// a table reused by every layer of every step is reported once.
var logged sync.Map

// Option configures a single Forward, Backward or Apply call.
type Option func(*config)

type config struct {
	workers int
	partial bool
	logger  *log.Logger
	warn    func(error)
}

func defaultConfig() config {
	return config{
		workers: runtime.NumCPU(),
		logger:  defaultLogger,
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}
	return cfg
}

// WithWorkers sets how many goroutines share the kernel. Values below one mean one.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// WithPartialRotary lets cos/sin cover only the leading d2 <= D elements of
// the head dimension. Elements [d2, D) pass through unchanged.
func WithPartialRotary() Option {
	return func(c *config) { c.partial = true }
}

// WithLogger replaces the logger used for precision warnings. Each distinct
// warning is written to a given logger once.
func WithLogger(l *log.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithWarningHandler routes non-fatal warnings such as ErrLowPrecision to fn
// instead of the logger. fn sees every warning, including repeats.
func WithWarningHandler(fn func(error)) Option {
	return func(c *config) { c.warn = fn }
}

func (c *config) warning(err error) {
	switch {
	case c.warn != nil:
		c.warn(err)
	case c.logger != nil:
		key := struct {
			l   *log.Logger
			msg string
		}{c.logger, err.Error()}
		if _, seen := logged.LoadOrStore(key, struct{}{}); !seen {
			c.logger.Printf("warning: %v", err)
		}
	}
}
