package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"quant-council/internal/logger"
)

// Headline is one scraped news headline for a symbol.
type Headline struct {
	Title  string
	URL    string
	Source string
}

// Source defines one crypto news listing page to scrape.
type Source struct {
	Name      string
	BaseURL   string
	QueryPath string // e.g. "/search?q={symbol}"
	Selectors HeadlineSelectors
}

// HeadlineSelectors are the CSS selectors that locate headlines on the listing page.
type HeadlineSelectors struct {
	Container string
	Title     string
	URL       string
}

// Feed scrapes recent headlines for a symbol from the configured sources.
type Feed struct {
	sources []Source
	timeout time.Duration
	client  *http.Client
}

func NewFeed(timeout time.Duration) *Feed {
	return &Feed{
		sources: defaultSources(),
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func defaultSources() []Source {
	return []Source{
		{
			Name:      "CoinDesk",
			BaseURL:   "https://www.coindesk.com",
			QueryPath: "/search?s={symbol}",
			Selectors: HeadlineSelectors{
				Container: "div.searchstory-content, article",
				Title:     "h6 a, h4 a, a.headline",
				URL:       "h6 a, h4 a, a.headline",
			},
		},
		{
			Name:      "Cointelegraph",
			BaseURL:   "https://cointelegraph.com",
			QueryPath: "/search?query={symbol}",
			Selectors: HeadlineSelectors{
				Container: "article",
				Title:     "span.post-card-inline__title, a",
				URL:       "a",
			},
		},
	}
}

// Fetch collects up to max headlines across all sources. Per-source failures
// are logged and skipped; the Google News fallback only runs when every
// configured source came back empty.
func (f *Feed) Fetch(ctx context.Context, symbol string, max int) ([]Headline, error) {
	perSource := max / len(f.sources)
	if perSource < 1 {
		perSource = 1
	}

	var all []Headline
	for _, src := range f.sources {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		headlines, err := f.fetchSource(ctx, src, symbol, perSource)
		if err != nil {
			logger.Warn(ctx, "Headline source failed", "source", src.Name, "symbol", symbol, "err", err)
			continue
		}
		all = append(all, headlines...)
	}

	if len(all) == 0 {
		fallback, err := f.fetchGoogleNews(ctx, symbol, max)
		if err != nil {
			return nil, fmt.Errorf("all headline sources failed: %w", err)
		}
		all = fallback
	}

	if len(all) > max {
		all = all[:max]
	}
	logger.Debug(ctx, "Headlines fetched", "symbol", symbol, "count", len(all))
	return all, nil
}

func (f *Feed) fetchSource(ctx context.Context, src Source, symbol string, max int) ([]Headline, error) {
	var headlines []Headline

	c := colly.NewCollector(
		colly.AllowedDomains(hostOf(src.BaseURL)),
		colly.MaxDepth(1),
		colly.Async(false),
	)
	c.SetRequestTimeout(f.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	})

	c.OnHTML(src.Selectors.Container, func(e *colly.HTMLElement) {
		if len(headlines) >= max {
			return
		}
		title := strings.TrimSpace(e.ChildText(src.Selectors.Title))
		if title == "" {
			return
		}
		link := e.ChildAttr(src.Selectors.URL, "href")
		if link != "" && !strings.HasPrefix(link, "http") {
			link = src.BaseURL + link
		}
		headlines = append(headlines, Headline{Title: title, URL: link, Source: src.Name})
	})

	searchURL := src.BaseURL + strings.ReplaceAll(src.QueryPath, "{symbol}", url.QueryEscape(symbol))
	if err := c.Visit(searchURL); err != nil {
		return nil, err
	}
	c.Wait()
	return headlines, nil
}

// fetchGoogleNews is the fallback listing, parsed directly with goquery.
func (f *Feed) fetchGoogleNews(ctx context.Context, symbol string, max int) ([]Headline, error) {
	q := url.QueryEscape(symbol + " crypto")
	searchURL := fmt.Sprintf("https://news.google.com/search?q=%s&hl=en-US&gl=US&ceid=US:en", q)

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("google news http %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var headlines []Headline
	doc.Find("article").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Find("h3, h4, a.JtKRv").First().Text())
		if title == "" {
			return true
		}
		link, _ := sel.Find("a").First().Attr("href")
		if strings.HasPrefix(link, "./") {
			link = "https://news.google.com" + link[1:]
		}
		headlines = append(headlines, Headline{Title: title, URL: link, Source: "GoogleNews"})
		return len(headlines) < max
	})
	return headlines, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
