package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"clashforge/internal/model"
)

const stage = "fetch_rules"

type Options struct {
	Timeout  time.Duration // per request, default 15s
	RetryMax int           // retries per request, default 2
	// Client overrides the default retrying client. Tests use it to get
	// deterministic single-shot behavior.
	Client *http.Client
}

type FetchError struct {
	AppError model.AppError
	Cause    error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

func newClient(opt Options) *http.Client {
	if opt.Client != nil {
		return opt.Client
	}
	timeout := opt.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	retryMax := opt.RetryMax
	if retryMax == 0 {
		retryMax = 2
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil
	return rc.StandardClient()
}

// Ranged downloads rawURL using threads concurrent HTTP range requests.
//
// It first issues a HEAD request to learn the exact byte length, then splits
// [0, total) into contiguous ranges of equal size (the last range absorbs the
// remainder) and writes each response into its own disjoint subslice of one
// pre-sized buffer. Any failed range fails the whole fetch; there is no
// partial result. threads is clamped to [1, total] so a tiny resource never
// produces empty or overlapping ranges.
func Ranged(ctx context.Context, rawURL string, threads int, opt Options) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &FetchError{
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: "仅允许 http/https URL",
				Stage:   stage,
				URL:     rawURL,
			},
			Cause: err,
		}
	}

	client := newClient(opt)

	total, err := contentLength(ctx, client, rawURL)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return []byte{}, nil
	}

	if threads < 1 {
		threads = 1
	}
	if int64(threads) > total {
		threads = int(total)
	}
	chunk := total / int64(threads)

	buf := make([]byte, total)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < threads; i++ {
		start := int64(i) * chunk
		end := start + chunk - 1
		if i == threads-1 {
			end = total - 1
		}
		dst := buf[start : end+1]
		g.Go(func() error {
			return fetchRange(ctx, client, rawURL, dst, start, end)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buf, nil
}

// contentLength issues the metadata request. Servers that do not report an
// exact byte length cannot be range-partitioned and fail the fetch.
func contentLength(ctx context.Context, client *http.Client, rawURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, &FetchError{
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: "请求 URL 不合法",
				Stage:   stage,
				URL:     rawURL,
			},
			Cause: err,
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, wrapTransportError(rawURL, "获取资源元信息失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &FetchError{
			AppError: model.AppError{
				Code:    "FETCH_FAILED",
				Message: fmt.Sprintf("上游返回非 2xx 状态码：%d", resp.StatusCode),
				Stage:   stage,
				URL:     rawURL,
			},
		}
	}
	if resp.ContentLength < 0 {
		return 0, &FetchError{
			AppError: model.AppError{
				Code:    "MISSING_CONTENT_LENGTH",
				Message: "上游未返回精确的 Content-Length",
				Stage:   stage,
				URL:     rawURL,
				Hint:    "range download needs an exact byte length",
			},
		}
	}
	return resp.ContentLength, nil
}

func fetchRange(ctx context.Context, client *http.Client, rawURL string, dst []byte, start, end int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &FetchError{
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: "请求 URL 不合法",
				Stage:   stage,
				URL:     rawURL,
			},
			Cause: err,
		}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := client.Do(req)
	if err != nil {
		return wrapTransportError(rawURL, fmt.Sprintf("分片 %d-%d 请求失败", start, end), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return &FetchError{
			AppError: model.AppError{
				Code:    "FETCH_FAILED",
				Message: fmt.Sprintf("分片 %d-%d 返回状态码 %d", start, end, resp.StatusCode),
				Stage:   stage,
				URL:     rawURL,
			},
		}
	}

	if _, err := io.ReadFull(resp.Body, dst); err != nil {
		return &FetchError{
			AppError: model.AppError{
				Code:    "RANGE_MISMATCH",
				Message: fmt.Sprintf("分片 %d-%d 响应长度不足", start, end),
				Stage:   stage,
				URL:     rawURL,
			},
			Cause: err,
		}
	}
	// A server ignoring the Range header replies with the whole resource;
	// that would silently corrupt sibling ranges, so treat it as a mismatch.
	var extra [1]byte
	if n, _ := resp.Body.Read(extra[:]); n > 0 {
		return &FetchError{
			AppError: model.AppError{
				Code:    "RANGE_MISMATCH",
				Message: fmt.Sprintf("分片 %d-%d 响应长度超出请求范围", start, end),
				Stage:   stage,
				URL:     rawURL,
			},
		}
	}
	return nil
}

func wrapTransportError(rawURL, msg string, err error) error {
	var ne net.Error
	if (errors.As(err, &ne) && ne.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{
			AppError: model.AppError{
				Code:    "FETCH_TIMEOUT",
				Message: "拉取远程资源超时",
				Stage:   stage,
				URL:     rawURL,
			},
			Cause: err,
		}
	}
	return &FetchError{
		AppError: model.AppError{
			Code:    "FETCH_FAILED",
			Message: msg,
			Stage:   stage,
			URL:     rawURL,
		},
		Cause: err,
	}
}
