package fetcher

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"codedox/internal/model"
)

// RodFetcher renders JS-heavy pages in a real browser before handing the
// settled DOM to the extractor. Used when rod is enabled in config;
// documentation sites built as SPAs produce empty bodies over plain HTTP.
type RodFetcher struct {
	BrowserURL string
	Timeout    time.Duration
}

func NewRodFetcher(browserURL string, timeout time.Duration) *RodFetcher {
	return &RodFetcher{BrowserURL: browserURL, Timeout: timeout}
}

func (r *RodFetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, model.Wrap(model.KindValidation, "invalid url", err)
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	browser := rod.New().Context(ctx).Timeout(r.Timeout)
	if r.BrowserURL != "" {
		browser = browser.ControlURL(r.BrowserURL)
	}
	if err := browser.Connect(); err != nil {
		return nil, model.Wrap(model.KindFetch, "connect browser", err)
	}
	defer browser.MustClose()

	page, err := browser.Page(proto.TargetCreateTarget{URL: u.String()})
	if err != nil {
		return nil, model.Wrap(model.KindFetch, "open page", err)
	}
	defer page.MustClose()

	if err := page.WaitLoad(); err != nil {
		return nil, model.Wrap(model.KindFetch, "wait load", err)
	}

	htmlStr, err := page.HTML()
	if err != nil {
		return nil, model.Wrap(model.KindFetch, "read dom", err)
	}

	res := &Result{
		URL:         u.String(),
		HTML:        htmlStr,
		ContentType: "text/html",
		Status:      200,
		Engine:      "browser",
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return res, nil
	}
	res.Title = strings.TrimSpace(doc.Find("title").First().Text())
	res.Links = extractLinks(doc, u)
	return res, nil
}
