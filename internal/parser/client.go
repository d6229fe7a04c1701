package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
)

const (
	defaultBaseURL         = "https://api.upstage.ai/v1/document-ai/document-parse"
	defaultModel           = "document-parse"
	defaultPagesPerRequest = 10
	defaultMaxRetries      = 3
	defaultRetryBase       = 2 * time.Second
)

// Element is one layout element returned by the provider. Pages are 0-based
// on the wire.
type Element struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Page     int             `json:"page"`
	Category string          `json:"category"`
	Content  ElementContent  `json:"content"`
	// Four normalized corner points when coordinates are requested.
	Coordinates []Point `json:"coordinates,omitempty"`
	// Present for figure elements when base64 encoding is requested.
	Base64Encoding string `json:"base64_encoding,omitempty"`
}

type ElementContent struct {
	Text     string `json:"text,omitempty"`
	HTML     string `json:"html,omitempty"`
	Markdown string `json:"markdown,omitempty"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type parseResponse struct {
	Elements []Element `json:"elements"`
}

// Client calls the layout-analysis provider over multipart HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	pagesPer   int
	maxRetries int
	retryBase  time.Duration
	httpClient *http.Client
	logger     *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

type ClientConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	PagesPerRequest int
	Timeout         time.Duration
	MaxRetries      int
	RetryBase       time.Duration
	Logger          *zap.Logger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: layout provider api key", domain.ErrMissingCredentials)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.PagesPerRequest <= 0 {
		cfg.PagesPerRequest = defaultPagesPerRequest
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		pagesPer:   cfg.PagesPerRequest,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log,
		sleep:      sleepCtx,
	}, nil
}

// Parse submits the PDF in page windows and returns all elements merged in
// page order. Windows past the end of the document come back empty and stop
// the scan.
func (c *Client) Parse(ctx context.Context, pdfPath string) ([]Element, error) {
	var all []Element
	for start := 1; ; start += c.pagesPer {
		window := pageWindow(start, c.pagesPer)
		elements, err := c.parseWindow(ctx, pdfPath, window)
		if err != nil {
			return nil, err
		}
		if len(elements) == 0 {
			break
		}
		all = append(all, elements...)
		c.logger.Debug("parsed page window",
			zap.String("file", filepath.Base(pdfPath)),
			zap.String("pages", window),
			zap.Int("elements", len(elements)))
	}
	return all, nil
}

func (c *Client) parseWindow(ctx context.Context, pdfPath, pages string) ([]Element, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		elements, err := c.doRequest(ctx, pdfPath, pages)
		if err == nil {
			return elements, nil
		}
		lastErr = err
		if !domain.IsRetryable(err) {
			return nil, err
		}
		if attempt == c.maxRetries {
			break
		}
		delay := c.retryBase * time.Duration(1<<(attempt-1))
		c.logger.Warn("layout request failed, retrying",
			zap.String("pages", pages),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("layout request exhausted %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) doRequest(ctx context.Context, pdfPath, pages string) ([]Element, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("document", filepath.Base(pdfPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	fields := map[string]string{
		"ocr":             "force",
		"model":           c.model,
		"output_formats":  "['markdown']",
		"coordinates":     "true",
		"base64_encoding": "['figure']",
		"pages":           pages,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewProviderStatus(domain.ErrParseProviderError, 0, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewProviderStatus(domain.ErrParseProviderError, resp.StatusCode, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewProviderStatus(domain.ErrParseProviderError, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var payload parseResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode layout response: %w", err)
	}
	return payload.Elements, nil
}

func pageWindow(start, count int) string {
	pages := make([]string, 0, count)
	for p := start; p < start+count; p++ {
		pages = append(pages, strconv.Itoa(p))
	}
	return strings.Join(pages, ",")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
