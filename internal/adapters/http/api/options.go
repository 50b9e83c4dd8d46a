package api

import "github.com/okian/skillsync/pkg/logger"

const defaultHistoryLimit = 50

type options struct {
	historyLimit int
	logger       logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*options)

// WithHistoryLimit sets the default page size of /users/{id}/history.
func WithHistoryLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// WithLogger sets a custom logger for the API.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
