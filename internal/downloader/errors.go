package downloader

import "fmt"

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: %s for url: %s", e.Status, e.URL)
}

// SizeMismatchError reports a body shorter or longer than its Content-Length.
type SizeMismatchError struct {
	Expected int64
	Received int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("download incomplete: expected %d bytes, received %d bytes", e.Expected, e.Received)
}

// ChecksumError reports a SHA256 digest that differs from the expected one.
type ChecksumError struct {
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("SHA256 mismatch: expected %s, got %s", e.Expected, e.Actual)
}
