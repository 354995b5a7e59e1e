package photo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"recipeagent"
)

const defaultFetchTimeout = 10 * time.Second

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// FetchError reports a reference that could not be resolved to bytes.
type FetchError struct {
	Ref        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch image %s: status %d", e.Ref, e.StatusCode)
	}
	return fmt.Sprintf("fetch image %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher resolves image references to bytes.
type Fetcher struct {
	httpClient recipeagent.HTTPClient
	s3         objectGetter
	timeout    time.Duration
	maxBytes   int64
}

type FetcherOption func(*Fetcher)

// WithS3 enables s3://bucket/key references.
func WithS3(client objectGetter) FetcherOption {
	return func(f *Fetcher) { f.s3 = client }
}

func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func NewFetcher(httpClient recipeagent.HTTPClient, maxBytes int64, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: httpClient,
		timeout:    defaultFetchTimeout,
		maxBytes:   maxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the bytes behind ref. Inline data is returned as is. Remote
// reads stop one byte past the limit, so oversized bodies fail with
// ErrTooLarge without being fully buffered.
func (f *Fetcher) Fetch(ctx context.Context, ref recipeagent.ImageRef) ([]byte, error) {
	if len(ref.Data) > 0 {
		return ref.Data, nil
	}
	if ref.URL == "" {
		return nil, &FetchError{Ref: "<empty>", Err: fmt.Errorf("no image url or data")}
	}

	u, err := url.Parse(ref.URL)
	if err != nil {
		return nil, &FetchError{Ref: ref.URL, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	var data []byte
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		data, err = f.fetchHTTP(ctx, ref.URL)
	case "s3":
		data, err = f.fetchS3(ctx, u)
	default:
		err = &FetchError{Ref: ref.URL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if err != nil {
		slog.Warn("PHOTO: Fetch failed", "ref", ref.URL, "error", err)
		return nil, err
	}

	slog.Info("PHOTO: Fetched image", "ref", ref.URL, "bytes", len(data), "duration_ms", time.Since(start).Milliseconds())
	return data, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Ref: rawURL, Err: err}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Ref: rawURL, Err: classify(ctx, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		ferr := &FetchError{Ref: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, recipeagent.Transient(ferr)
		}
		return nil, ferr
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: content length %d, limit %d", ErrTooLarge, resp.ContentLength, f.maxBytes)
	}
	return f.readLimited(ctx, rawURL, resp.Body)
}

func (f *Fetcher) fetchS3(ctx context.Context, u *url.URL) ([]byte, error) {
	ref := u.String()
	if f.s3 == nil {
		return nil, &FetchError{Ref: ref, Err: fmt.Errorf("s3 references are not enabled")}
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return nil, &FetchError{Ref: ref, Err: fmt.Errorf("s3 reference needs a bucket and a key")}
	}

	out, err := f.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &FetchError{Ref: ref, Err: classify(ctx, err)}
	}
	defer out.Body.Close()

	if f.maxBytes > 0 && aws.ToInt64(out.ContentLength) > f.maxBytes {
		return nil, fmt.Errorf("%w: content length %d, limit %d", ErrTooLarge, aws.ToInt64(out.ContentLength), f.maxBytes)
	}
	return f.readLimited(ctx, ref, out.Body)
}

func (f *Fetcher) readLimited(ctx context.Context, ref string, body io.Reader) ([]byte, error) {
	var r io.Reader = body
	if f.maxBytes > 0 {
		r = io.LimitReader(body, f.maxBytes+1)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, &FetchError{Ref: ref, Err: classify(ctx, err)}
	}
	if f.maxBytes > 0 && int64(buf.Len()) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	return buf.Bytes(), nil
}

// classify marks timeouts as transient; everything else is returned as is.
func classify(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded || recipeagent.IsTransient(err) {
		return recipeagent.Transient(err)
	}
	return err
}
