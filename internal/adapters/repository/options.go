package repository

import "github.com/okian/skillsync/pkg/logger"

type options struct {
	log logger.Logger
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithLogger sets the logger used by the store.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func newOptions(opts ...Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Named("repository")
	}
	return o
}
