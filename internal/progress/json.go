package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/accelara/downlink/internal/downloader"
)

const jsonInterval = 100 * time.Millisecond

// JSON writes one JSON object per line. Intermediate "downloading" updates
// are throttled per label; start and terminal states are always written.
// It is safe for concurrent downloads.
type JSON struct {
	mu         sync.Mutex
	w          io.Writer
	lastUpdate map[string]time.Time
	now        func() time.Time
}

func NewJSON(w io.Writer) *JSON {
	return &JSON{
		w:          w,
		lastUpdate: make(map[string]time.Time),
		now:        time.Now,
	}
}

type jsonStatus struct {
	Label           string   `json:"label"`
	Status          string   `json:"status"`
	Downloaded      int64    `json:"downloaded"`
	Total           int64    `json:"total"`
	Progress        *float64 `json:"progress,omitempty"`
	DownloadedHuman string   `json:"downloaded_human"`
	Error           string   `json:"error,omitempty"`
	Timestamp       int64    `json:"timestamp"`
}

func (j *JSON) Report(status downloader.Status) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	if status.State == downloader.StateDownloading && status.Delta > 0 {
		if now.Sub(j.lastUpdate[status.Label]) < jsonInterval {
			return
		}
	}
	j.lastUpdate[status.Label] = now
	if status.State != downloader.StateDownloading {
		delete(j.lastUpdate, status.Label)
	}

	out := jsonStatus{
		Label:           status.Label,
		Status:          status.State,
		Downloaded:      status.Downloaded,
		Total:           status.Total,
		DownloadedHuman: humanize.IBytes(uint64(status.Downloaded)),
		Timestamp:       now.Unix(),
	}
	if status.Total > 0 {
		p := float64(status.Downloaded) / float64(status.Total)
		if p > 1.0 {
			p = 1.0
		}
		out.Progress = &p
	}
	if status.Err != nil {
		out.Error = status.Err.Error()
	}

	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	fmt.Fprintln(j.w, string(data))
}
