package repository

import (
	"fmt"

	"github.com/okian/vidrank/pkg/logger"
)

type options struct {
	fileName   string
	syncWrites bool
	inMemory   bool
	log        logger.Logger
}

func defaultOptions() options {
	return options{fileName: "records.json"}
}

// Option applies a configuration option to a Log backend.
type Option func(*options)

// WithFileName sets the file used by the file backend.
func WithFileName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.fileName = name
		}
	}
}

// WithSyncWrites makes the badger backend fsync every write.
func WithSyncWrites(sync bool) Option {
	return func(o *options) {
		o.syncWrites = sync
	}
}

// WithInMemory runs the badger backend without touching disk.
func WithInMemory(inMemory bool) Option {
	return func(o *options) {
		o.inMemory = inMemory
	}
}

// WithLogger routes backend diagnostics to l. Without it badger stays silent.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// badgerLogger adapts logger.Logger to badger's printf-style logger.
type badgerLogger struct {
	l logger.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(bg, fmt.Sprintf(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(bg, fmt.Sprintf(format, args...))
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Debug(bg, fmt.Sprintf(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug(bg, fmt.Sprintf(format, args...))
}
