// Package progress renders download progress reported by the downloader.
package progress

import (
	"fmt"
	"io"

	"github.com/accelara/downlink/internal/downloader"
)

// Rendering modes.
const (
	ModeBar  = "bar"
	ModeJSON = "json"
	ModeNone = "none"
)

// Factory returns the reporter for the next download. It returns nil when
// progress is disabled.
type Factory func() downloader.StatusReporter

// NewFactory builds a Factory writing in the given mode to w.
func NewFactory(mode string, w io.Writer) (Factory, error) {
	switch mode {
	case ModeBar:
		return func() downloader.StatusReporter { return NewBar(w) }, nil
	case ModeJSON:
		shared := NewJSON(w)
		return func() downloader.StatusReporter { return shared }, nil
	case ModeNone:
		return func() downloader.StatusReporter { return nil }, nil
	default:
		return nil, fmt.Errorf("unknown progress mode %q (expected %s or %s)", mode, ModeBar, ModeJSON)
	}
}
