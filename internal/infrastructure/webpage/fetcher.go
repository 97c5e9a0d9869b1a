package webpage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/patrickmn/go-cache"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/resilience"
)

const (
	DefaultMaxChars = 5000
	maxBodyBytes    = 20 << 20
)

type Options struct {
	Timeout   time.Duration
	MaxChars  int
	CacheTTL  time.Duration
	UserAgent string
	Executor  *resilience.Executor
	Logger    *slog.Logger
}

// Fetcher downloads report pages and returns their visible text, truncated to MaxChars.
type Fetcher struct {
	httpClient *http.Client
	maxChars   int
	userAgent  string
	cache      *cache.Cache
	executor   *resilience.Executor
	logger     *slog.Logger
}

func New(opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxChars := opts.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "filings-rag-assistant/1.0"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxChars:   maxChars,
		userAgent:  userAgent,
		cache:      cache.New(ttl, 2*ttl),
		executor:   opts.Executor,
		logger:     logger,
	}
}

// Fetch never panics or returns an error value; failures are carried in the result.
func (f *Fetcher) Fetch(ctx context.Context, url string) domain.FetchResult {
	if !strings.HasPrefix(url, "http") {
		return domain.FetchResult{URL: url, Err: fmt.Errorf("unsupported url %q", url)}
	}
	if cached, ok := f.cache.Get(url); ok {
		return domain.FetchResult{URL: url, Text: cached.(string)}
	}

	text, err := resilience.Do(ctx, f.executor, "webpage.fetch", func(callCtx context.Context) (string, error) {
		return f.download(callCtx, url)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		f.logger.Debug("webpage_fetch_failed", "url", url, "error", err)
		return domain.FetchResult{URL: url, Err: err}
	}

	text = truncateRunes(text, f.maxChars)
	if strings.TrimSpace(text) != "" {
		f.cache.SetDefault(url, text)
	}
	return domain.FetchResult{URL: url, Text: text}
}

func (f *Fetcher) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resilience.NewStatusError("webpage", "fetch", resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if isPDF(resp.Header.Get("Content-Type"), url, body) {
		return extractPDFText(body)
	}
	return extractHTMLText(bytes.NewReader(body))
}

func isPDF(contentType, url string, body []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/pdf" {
		return true
	}
	if strings.HasSuffix(strings.ToLower(url), ".pdf") {
		return true
	}
	return bytes.HasPrefix(body, []byte("%PDF-"))
}

func extractPDFText(body []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errors.New("pdf has no extractable text")
	}
	return out, nil
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
