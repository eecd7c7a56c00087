package repository

const defaultRetention = 1_000

// options are shared by every Store implementation.
type options struct {
	retention int
}

// Option applies a configuration option to a Store.
type Option func(*options)

// WithRetention bounds how many batches are kept. Oldest are pruned first.
func WithRetention(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.retention = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{retention: defaultRetention}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
