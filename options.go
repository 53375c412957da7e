package opj

import (
	"context"
	"log/slog"
	"time"
)

// DefaultMaxBufferSize is the buffer's maximum live size before a flush is
// triggered, used when Options.MaxBufferSize is zero.
const DefaultMaxBufferSize = 1024

// DefaultCompactionBackoff is the delay before the compactor retries a
// failed merge, used when Options.CompactionBackoff is zero.
const DefaultCompactionBackoff = time.Second

// Options configures a Journal. The zero value is valid: every field has
// a sensible default filled in by New and Open.
type Options struct {
	// MaxBufferSize is the buffer record count above which Append
	// triggers a flush to a new segment. Default DefaultMaxBufferSize.
	MaxBufferSize int

	// CompactionBackoff is how long the compactor waits after a failed
	// merge before retrying. Default DefaultCompactionBackoff.
	CompactionBackoff time.Duration

	// Logger receives structured log records for failed compactions and,
	// when Verbose is set, for journal open and each completed compaction.
	// The startup sweep and buffer flushes are not logged. Default
	// slog.Default().
	Logger *slog.Logger

	// Verbose enables Debug-level logging of journal open and of each
	// completed compaction, which is otherwise silent.
	Verbose bool

	// Context is passed to Logger with each Debug-level record; it does not
	// cancel or bound any journal operation. Default context.Background().
	Context context.Context
}

func (o *Options) setDefaults() {
	if o.MaxBufferSize <= 0 {
		o.MaxBufferSize = DefaultMaxBufferSize
	}
	if o.CompactionBackoff <= 0 {
		o.CompactionBackoff = DefaultCompactionBackoff
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
}
