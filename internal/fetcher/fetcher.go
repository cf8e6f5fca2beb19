package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sethvargo/go-retry"

	"codedox/internal/model"
)

// Request is one page fetch.
type Request struct {
	URL       string
	UserAgent string
}

// Result is the raw fetch output handed to the extractor.
type Result struct {
	URL         string // final URL after redirects
	HTML        string
	Title       string
	ContentType string
	Links       []string
	Status      int
	Engine      string
}

// Fetcher retrieves one page. Implementations must honor ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Result, error)
}

// HTTPFetcher fetches pages with net/http and parses them with goquery.
// Transient failures (network errors, 5xx, 408, 429) are retried with
// exponential backoff; other client errors fail immediately.
type HTTPFetcher struct {
	client    *http.Client
	sizeLimit int64
}

func NewHTTPFetcher(timeout time.Duration, sizeLimit int64) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		sizeLimit: sizeLimit,
	}
}

const (
	maxAttempts  = 3
	retryBackoff = 500 * time.Millisecond
)

func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, model.Wrap(model.KindValidation, "invalid url", err)
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	var res *Result
	backoff := retry.WithMaxRetries(maxAttempts-1, retry.NewExponential(retryBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := f.fetchOnce(ctx, u, req.UserAgent)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, u *url.URL, userAgent string) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, model.Wrap(model.KindFetch, "build request", err)
	}
	if userAgent != "" {
		httpReq.Header.Set("User-Agent", userAgent)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.Wrap(model.KindCancelled, "fetch cancelled", ctx.Err())
		}
		return nil, retry.RetryableError(model.Wrap(model.KindFetch, "fetch "+u.String(), err))
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	body := io.Reader(resp.Body)
	if f.sizeLimit > 0 {
		body = io.LimitReader(resp.Body, f.sizeLimit)
	}
	bodyBytes, err := io.ReadAll(body)
	if err != nil {
		return nil, retry.RetryableError(model.Wrap(model.KindFetch, "read body", err))
	}

	finalURL := resp.Request.URL
	htmlStr := string(bodyBytes)

	res := &Result{
		URL:         finalURL.String(),
		HTML:        htmlStr,
		ContentType: resp.Header.Get("Content-Type"),
		Status:      resp.StatusCode,
		Engine:      "http",
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		// Unparseable body still counts as fetched; the extractor
		// decides what to do with it.
		return res, nil
	}
	res.Title = strings.TrimSpace(doc.Find("title").First().Text())
	res.Links = extractLinks(doc, finalURL)
	return res, nil
}

// checkStatus maps HTTP status codes to the retry policy. A 429 or 408
// honors Retry-After when present by surfacing a retryable error after
// the advertised delay elapses.
func checkStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 500:
		return retry.RetryableError(model.E(model.KindFetch,
			fmt.Sprintf("server error %d for %s", code, resp.Request.URL)))
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout:
		if wait := retryAfter(resp); wait > 0 {
			select {
			case <-time.After(wait):
			case <-resp.Request.Context().Done():
				return model.Wrap(model.KindCancelled, "fetch cancelled", resp.Request.Context().Err())
			}
		}
		return retry.RetryableError(model.E(model.KindFetch,
			fmt.Sprintf("throttled (%d) at %s", code, resp.Request.URL)))
	default:
		return model.E(model.KindFetch,
			fmt.Sprintf("status %d for %s", code, resp.Request.URL))
	}
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		if secs > 30 {
			secs = 30
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d > 30*time.Second {
			d = 30 * time.Second
		}
		if d > 0 {
			return d
		}
	}
	return 0
}

// extractLinks pulls absolute http(s) links from anchors, dropping
// fragments so the same page is not queued once per anchor.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}
		if !linkURL.IsAbs() {
			linkURL = base.ResolveReference(linkURL)
		}
		if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
			return
		}
		linkURL.Fragment = ""
		s := linkURL.String()
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		links = append(links, s)
	})
	return links
}
