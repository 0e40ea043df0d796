package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPDownloader streams a single URL into a single file.
type HTTPDownloader struct {
	sourceURL string
	outPath   string
	label     string
	chunkSize int64
	rateLimit int64
	sha256    string
	userAgent string
	reporter  StatusReporter
	logger    *zap.Logger

	client     *http.Client
	totalSize  int64
	downloaded int64
}

func NewHTTPDownloader(sourceURL, outPath string, opts Options) *HTTPDownloader {
	opts = opts.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			opts.Logger.Warn("ignoring invalid proxy URL",
				zap.String("proxy", opts.Proxy),
				zap.Error(err))
		}
	}

	// The timeout covers connecting and waiting for the response headers.
	// Reading the body is unbounded.
	transport.DialContext = (&net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = opts.ConnectTimeout
	transport.ResponseHeaderTimeout = opts.ConnectTimeout

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &HTTPDownloader{
		sourceURL: sourceURL,
		outPath:   outPath,
		label:     filepath.Base(outPath),
		chunkSize: opts.ChunkSize,
		rateLimit: opts.RateLimit,
		sha256:    strings.ToLower(strings.TrimSpace(opts.SHA256)),
		userAgent: opts.UserAgent,
		reporter:  opts.StatusReporter,
		logger:    opts.Logger,
		client:    client,
		totalSize: -1,
	}
}

// Download fetches the URL and writes the body to the output path, returning
// its absolute form. The body is staged in a hidden temp file next to the
// destination and renamed into place only once the transfer has succeeded.
func (d *HTTPDownloader) Download(ctx context.Context) (string, error) {
	defer d.client.CloseIdleConnections()

	absPath, err := filepath.Abs(d.outPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output path %s: %w", d.outPath, err)
	}

	d.logger.Debug("starting download",
		zap.String("url", d.sourceURL),
		zap.String("path", absPath),
		zap.Int64("chunk_size", d.chunkSize))

	resp, err := d.get(ctx)
	if err != nil {
		d.report(StateError, 0, err)
		return "", err
	}
	defer resp.Body.Close()

	d.totalSize = contentLength(resp.Header)
	d.report(StateDownloading, 0, nil)

	tempPath, err := d.writeTemp(ctx, resp.Body, absPath)
	if err != nil {
		d.report(StateError, 0, err)
		return "", err
	}

	if err := os.Rename(tempPath, absPath); err != nil {
		os.Remove(tempPath)
		err = fmt.Errorf("failed to move file to destination: %w", err)
		d.report(StateError, 0, err)
		return "", err
	}

	d.report(StateCompleted, 0, nil)
	d.logger.Info("download completed",
		zap.String("url", d.sourceURL),
		zap.String("path", absPath),
		zap.String("size", humanize.IBytes(uint64(d.downloaded))))

	return absPath, nil
}

func (d *HTTPDownloader) get(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("download interrupted: %w", ctxErr)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &StatusError{
			URL:        d.sourceURL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	if finalURL := resp.Request.URL.String(); finalURL != d.sourceURL {
		d.logger.Debug("followed redirect",
			zap.String("url", d.sourceURL),
			zap.String("final_url", finalURL))
	}

	return resp, nil
}

// writeTemp copies body into a new temp file in the destination directory and
// returns the temp file's path. On error the temp file is removed.
func (d *HTTPDownloader) writeTemp(ctx context.Context, body io.Reader, absPath string) (_ string, err error) {
	file, err := createTemp(absPath)
	if err != nil {
		return "", err
	}
	tempPath := file.Name()

	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", tempPath, cerr)
		}
		if err != nil {
			if rerr := os.Remove(tempPath); rerr != nil {
				d.logger.Warn("failed to remove temp file", zap.String("path", tempPath), zap.Error(rerr))
			}
		}
	}()

	var limiter *rate.Limiter
	if d.rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(d.rateLimit), int(d.chunkSize))
	}

	var digest hash.Hash
	if d.sha256 != "" {
		digest = sha256.New()
	}

	buf := make([]byte, d.chunkSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return "", fmt.Errorf("download interrupted: %w", err)
				}
			}
			if _, err := file.Write(buf[:n]); err != nil {
				return "", fmt.Errorf("failed to write %s: %w", tempPath, err)
			}
			if digest != nil {
				digest.Write(buf[:n])
			}
			d.downloaded += int64(n)
			d.report(StateDownloading, int64(n), nil)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("download interrupted: %w", ctxErr)
			}
			return "", fmt.Errorf("read error: %w", rerr)
		}
	}

	if d.totalSize > 0 && d.downloaded != d.totalSize {
		return "", &SizeMismatchError{Expected: d.totalSize, Received: d.downloaded}
	}

	if digest != nil {
		computed := hex.EncodeToString(digest.Sum(nil))
		if computed != d.sha256 {
			return "", &ChecksumError{Expected: d.sha256, Actual: computed}
		}
	}

	return tempPath, nil
}

// createTemp opens a new hidden file next to absPath. The file is created
// with mode 0666 so the process umask decides its final permissions.
func createTemp(absPath string) (*os.File, error) {
	dir, base := filepath.Dir(absPath), filepath.Base(absPath)
	for range 10 {
		name := filepath.Join(dir, "."+base+"."+uuid.NewString()+".part")
		file, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create temp file: %w", err)
		}
		return file, nil
	}
	return nil, fmt.Errorf("failed to create temp file in %s", dir)
}

func (d *HTTPDownloader) report(state string, delta int64, err error) {
	if d.reporter == nil {
		return
	}
	d.reporter.Report(Status{
		Label:      d.label,
		State:      state,
		Total:      d.totalSize,
		Downloaded: d.downloaded,
		Delta:      delta,
		Err:        err,
	})
}

// contentLength returns the declared body size, or -1 when the header is
// missing or not a positive integer.
func contentLength(h http.Header) int64 {
	v := strings.TrimSpace(h.Get("Content-Length"))
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return -1
	}
	return n
}
