package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"

	"codedox/internal/model"
)

// Gate enforces per-host politeness: robots.txt rules and a minimum
// delay between requests to the same host. It wraps another Fetcher.
type Gate struct {
	next          Fetcher
	userAgent     string
	respectRobots bool
	delay         time.Duration

	mu       sync.Mutex
	robots   map[string]*robotstxt.RobotsData
	limiters map[string]*rate.Limiter

	client *http.Client
}

// NewGate wraps next with robots.txt and rate limiting. A zero delay
// disables throttling; respectRobots false skips robots.txt entirely.
func NewGate(next Fetcher, userAgent string, respectRobots bool, delay time.Duration) *Gate {
	return &Gate{
		next:          next,
		userAgent:     userAgent,
		respectRobots: respectRobots,
		delay:         delay,
		robots:        make(map[string]*robotstxt.RobotsData),
		limiters:      make(map[string]*rate.Limiter),
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *Gate) Fetch(ctx context.Context, req Request) (*Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, model.Wrap(model.KindValidation, "invalid url", err)
	}

	if g.respectRobots {
		allowed, err := g.allowed(ctx, u)
		if err == nil && !allowed {
			return nil, model.E(model.KindFetch, "blocked by robots.txt: "+req.URL)
		}
	}

	if g.delay > 0 {
		if err := g.limiter(u.Host).Wait(ctx); err != nil {
			return nil, model.Wrap(model.KindCancelled, "fetch cancelled", err)
		}
	}

	if req.UserAgent == "" {
		req.UserAgent = g.userAgent
	}
	return g.next.Fetch(ctx, req)
}

func (g *Gate) limiter(host string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(g.delay), 1)
		g.limiters[host] = l
	}
	return l
}

// allowed consults the host's robots.txt, fetching and caching it on
// first use. Fetch failures are treated as allow-all; a missing or
// broken robots.txt must not stop a crawl.
func (g *Gate) allowed(ctx context.Context, u *url.URL) (bool, error) {
	g.mu.Lock()
	data, ok := g.robots[u.Host]
	g.mu.Unlock()

	if !ok {
		robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
		if err != nil {
			return true, err
		}
		httpReq.Header.Set("User-Agent", g.userAgent)

		resp, err := g.client.Do(httpReq)
		if err != nil {
			data = &robotstxt.RobotsData{}
		} else {
			body, rerr := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
			resp.Body.Close()
			if rerr != nil || resp.StatusCode != http.StatusOK {
				data = &robotstxt.RobotsData{}
			} else if parsed, perr := robotstxt.FromBytes(body); perr == nil {
				data = parsed
			} else {
				data = &robotstxt.RobotsData{}
			}
		}

		g.mu.Lock()
		g.robots[u.Host] = data
		g.mu.Unlock()
	}

	return data.TestAgent(u.Path, g.userAgent), nil
}
