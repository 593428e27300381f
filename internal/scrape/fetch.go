package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const (
	defaultFetchTimeout = 30 * time.Second
	maxBodyBytes        = 10 << 20
	userAgent           = "routesmith/1.0 (+https://github.com/kalambet/routesmith)"
)

// Page is the cleaned, LLM-ready text of one source.
type Page struct {
	URL      string
	Title    string
	Markdown string
}

// Fetcher downloads pages and reduces them to markdown. Requests are paced
// by a shared limiter across all goroutines.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	sanitizer *bluemonday.Policy
	md        *converter.Converter
}

// NewFetcher creates a Fetcher that issues at most perSecond requests per
// second. perSecond <= 0 disables pacing.
func NewFetcher(perSecond float64) *Fetcher {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Fetcher{
		client:    &http.Client{Timeout: defaultFetchTimeout},
		limiter:   rate.NewLimiter(limit, 1),
		sanitizer: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Fetch downloads rawURL and converts it. PDFs are reduced to plain text;
// everything else is treated as HTML.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Page{}, fmt.Errorf("invalid url %q", rawURL)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("fetching %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("reading %s: %w", rawURL, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if isPDF(contentType, u.Path) {
		text, err := pdfText(body)
		if err != nil {
			return Page{}, fmt.Errorf("reading pdf %s: %w", rawURL, err)
		}
		return Page{URL: rawURL, Markdown: text}, nil
	}
	return f.htmlPage(u, body, contentType)
}

func isPDF(contentType, path string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt == "application/pdf" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(path), ".pdf")
}

func pdfText(body []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}

// htmlPage decodes body to UTF-8, keeps the main content when readability
// finds one, sanitizes it and converts it to markdown.
func (f *Fetcher) htmlPage(u *url.URL, body []byte, contentType string) (Page, error) {
	utf8Body, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return Page{}, fmt.Errorf("decoding %s: %w", u, err)
	}
	decoded, err := io.ReadAll(utf8Body)
	if err != nil {
		return Page{}, fmt.Errorf("decoding %s: %w", u, err)
	}
	html := string(decoded)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Page{}, fmt.Errorf("parsing %s: %w", u, err)
	}
	title := normalizeSpace(doc.Find("title").First().Text())

	content := html
	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(html), u)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		content = article.Content
		if t := normalizeSpace(article.Title); t != "" {
			title = t
		}
	} else {
		// Readability rejects short pages and data tables; fall back to the body.
		if b, err := doc.Find("body").Html(); err == nil && strings.TrimSpace(b) != "" {
			content = b
		}
	}

	clean := f.sanitizer.Sanitize(content)
	markdown, err := f.md.ConvertString(clean, converter.WithDomain(u.Scheme+"://"+u.Host))
	if err != nil || strings.TrimSpace(markdown) == "" {
		markdown = normalizeSpace(doc.Find("body").Text())
	}

	return Page{URL: u.String(), Title: title, Markdown: strings.TrimSpace(markdown)}, nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
