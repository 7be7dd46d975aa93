package raster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// RangeReader reads byte ranges of a remote or local object.
type RangeReader interface {
	ReadRange(ctx context.Context, off, n int64) ([]byte, error)
}

// HTTPRangeReader reads byte ranges of a URL with HTTP Range requests.
type HTTPRangeReader struct {
	client *http.Client
	url    string
}

// DefaultHTTPTimeout bounds a single range request.
const DefaultHTTPTimeout = 2 * time.Minute

// NewHTTPClient returns an http.Client that honours proxy settings from the
// environment. A timeout <= 0 uses DefaultHTTPTimeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
	}
}

// NewHTTPRangeReader returns a RangeReader for url. A nil client uses
// NewHTTPClient(0).
func NewHTTPRangeReader(client *http.Client, url string) *HTTPRangeReader {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &HTTPRangeReader{client: client, url: url}
}

// ReadRange implements RangeReader. The server must answer 206; a 200 would
// mean the whole object is being streamed back.
func (r *HTTPRangeReader) ReadRange(ctx context.Context, off, n int64) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build range request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+n-1))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("range request %s: %w", r.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("range request %s: unexpected status %d", r.url, resp.StatusCode)
	}

	buf := make([]byte, n)
	got, err := io.ReadFull(resp.Body, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		// Ranges past the end of the object are truncated by the server.
		return buf[:got], nil
	}
	if err != nil {
		return nil, fmt.Errorf("read range body %s: %w", r.url, err)
	}
	return buf, nil
}

// ReaderAtRange adapts an io.ReaderAt (a file, a bytes.Reader) to RangeReader.
type ReaderAtRange struct {
	R io.ReaderAt
}

// ReadRange implements RangeReader.
func (r ReaderAtRange) ReadRange(_ context.Context, off, n int64) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	got, err := r.R.ReadAt(buf, off)
	if err == io.EOF {
		return buf[:got], nil
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// byteRange is a span [Off, Off+Len) of the object.
type byteRange struct {
	Off int64
	Len int64
}

func (b byteRange) end() int64 { return b.Off + b.Len }

// coalesceGap is the largest hole between two ranges that is still fetched
// in a single request.
const coalesceGap = 64 << 10

// coalesce merges ranges whose gaps are at most maxGap bytes. The input is
// not modified; the result is sorted by offset.
func coalesce(ranges []byteRange, maxGap int64) []byteRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]byteRange, 0, len(ranges))
	for _, r := range ranges {
		if r.Len > 0 {
			sorted = append(sorted, r)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Off < sorted[j].Off })

	var out []byteRange
	for _, r := range sorted {
		if n := len(out); n > 0 && r.Off <= out[n-1].end()+maxGap {
			if e := r.end(); e > out[n-1].end() {
				out[n-1].Len = e - out[n-1].Off
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
