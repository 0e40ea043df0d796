package downloader

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultChunkSize      = 8192
	MaxChunkSize          = 64 << 20
	DefaultConnectTimeout = 10 * time.Second
	maxRedirects          = 10
)

// Download states carried by Status.
const (
	StateDownloading = "downloading"
	StateCompleted   = "completed"
	StateError       = "error"
)

// Status is a progress snapshot for one download.
type Status struct {
	Label      string
	State      string
	Total      int64 // -1 when the server did not declare a length
	Downloaded int64
	Delta      int64 // bytes added since the previous report
	Err        error
}

// StatusReporter receives progress for a single download. A nil reporter
// disables progress reporting.
type StatusReporter interface {
	Report(status Status)
}

// Options contains all download options
type Options struct {
	ChunkSize      int64
	ConnectTimeout time.Duration
	RateLimit      int64 // bytes per second, 0 for unlimited
	Proxy          string
	SHA256         string
	UserAgent      string
	StatusReporter StatusReporter
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	o.ChunkSize = min(o.ChunkSize, MaxChunkSize)
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
