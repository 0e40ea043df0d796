package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/accelara/downlink/internal/downloader"
)

// Bar draws a terminal progress bar for a single download. Without a known
// total it falls back to a spinner with a byte counter.
type Bar struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func NewBar(w io.Writer) *Bar {
	return &Bar{w: w}
}

func (b *Bar) Report(status downloader.Status) {
	switch status.State {
	case downloader.StateDownloading:
		if b.bar == nil {
			b.bar = b.newBar(status)
		}
		if status.Delta > 0 {
			b.bar.Add64(status.Delta)
		}
	case downloader.StateCompleted:
		if b.bar == nil {
			return
		}
		if status.Total > 0 {
			b.bar.Finish()
		}
		fmt.Fprintln(b.w)
	case downloader.StateError:
		if b.bar != nil {
			fmt.Fprintln(b.w)
		}
	}
}

func (b *Bar) newBar(status downloader.Status) *progressbar.ProgressBar {
	return progressbar.NewOptions64(status.Total,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription(status.Label),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(10),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
