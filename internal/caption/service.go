package caption

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
	"github.com/kailas-cloud/manualdex/internal/figure"
	"github.com/kailas-cloud/manualdex/internal/metrics"
)

const (
	// MaxCaptionChars bounds the stored caption length.
	MaxCaptionChars = 320
	// maxExcerptChars bounds the manual text sent along with the image.
	maxExcerptChars = 1000

	defaultMaxRetries = 3
	defaultRetryBase  = 5 * time.Second
)

// Service captions the kept figures of a document and writes the merged
// record back as <doc_id>_figures_captioned.json.
type Service struct {
	captioner  domain.Captioner
	model      string
	reportDir  string
	maxRetries int
	retryBase  time.Duration
	logger     *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

type ServiceConfig struct {
	Captioner  domain.Captioner
	Model      string
	ReportDir  string
	MaxRetries int
	RetryBase  time.Duration
	Logger     *zap.Logger
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		captioner:  cfg.Captioner,
		model:      cfg.Model,
		reportDir:  cfg.ReportDir,
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBase,
		logger:     log,
		sleep:      sleepCtx,
	}
}

func (s *Service) ReportPath(docID string) string {
	return filepath.Join(s.reportDir, docID+"_figures_captioned.json")
}

// Options controls one caption run.
type Options struct {
	Force bool
	// RetryFailed re-attempts only figures whose recorded fallback reason
	// looks transient, keeping every other record as is.
	RetryFailed bool
}

// Run captions the kept figures of filtered and persists the merged report.
// pageText maps page number to that page's raw text for prompt context.
func (s *Service) Run(ctx context.Context, docID string, filtered *figure.Report, pageText map[int]string, opts Options) (*figure.Report, error) {
	outPath := s.ReportPath(docID)

	if opts.RetryFailed {
		prev, err := figure.LoadReport(outPath)
		if err != nil {
			return nil, fmt.Errorf("retry-failed needs an existing caption report: %w", err)
		}
		return s.retryTransient(ctx, docID, prev, pageText, outPath)
	}

	if !opts.Force {
		if prev, err := figure.LoadReport(outPath); err == nil {
			s.logger.Info("caption report exists, skipping", zap.String("doc_id", docID))
			return prev, nil
		}
	}

	report := *filtered
	report.Images = append([]domain.FigureRecord(nil), filtered.Images...)

	captioned, fallbacks := 0, 0
	for i := range report.Images {
		rec := &report.Images[i]
		if !rec.KeepForCaption {
			continue
		}
		if s.captionOne(ctx, rec, pageText) {
			captioned++
		} else {
			fallbacks++
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if err := figure.SaveReport(outPath, &report); err != nil {
		return nil, err
	}
	s.logger.Info("captioning finished",
		zap.String("doc_id", docID),
		zap.Int("captioned", captioned),
		zap.Int("fallbacks", fallbacks))
	return &report, nil
}

func (s *Service) retryTransient(ctx context.Context, docID string, prev *figure.Report, pageText map[int]string, outPath string) (*figure.Report, error) {
	retried, recovered := 0, 0
	for i := range prev.Images {
		rec := &prev.Images[i]
		if !rec.KeepForCaption || rec.Caption != "" {
			continue
		}
		if !transientReason(rec.FallbackReason) {
			continue
		}
		retried++
		if s.captionOne(ctx, rec, pageText) {
			recovered++
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if retried == 0 {
		s.logger.Info("no transient caption failures to retry", zap.String("doc_id", docID))
		return prev, nil
	}
	if err := figure.SaveReport(outPath, prev); err != nil {
		return nil, err
	}
	s.logger.Info("caption retry finished",
		zap.String("doc_id", docID),
		zap.Int("retried", retried),
		zap.Int("recovered", recovered))
	return prev, nil
}

// captionOne fills in Caption or FallbackReason and reports success.
func (s *Service) captionOne(ctx context.Context, rec *domain.FigureRecord, pageText map[int]string) bool {
	imgBytes, err := os.ReadFile(rec.CaptionFile)
	if err != nil {
		rec.FallbackReason = "file_not_found"
		metrics.CaptionFallbacksTotal.WithLabelValues(rec.FallbackReason).Inc()
		s.logger.Warn("caption image unreadable",
			zap.String("file", rec.CaptionFile),
			zap.Error(err))
		return false
	}

	excerpt := buildExcerpt(pageText[rec.Page])
	text, err := s.captionWithRetry(ctx, imgBytes, excerpt)
	if err != nil {
		rec.FallbackReason = fallbackReason(err)
		metrics.CaptionFallbacksTotal.WithLabelValues(rec.FallbackReason).Inc()
		s.logger.Warn("caption failed",
			zap.String("file", rec.File),
			zap.Int("page", rec.Page),
			zap.String("reason", rec.FallbackReason))
		return false
	}

	rec.Caption = truncateCaption(text)
	rec.CaptionModel = s.model
	rec.FallbackReason = ""
	return true
}

func (s *Service) captionWithRetry(ctx context.Context, imgBytes []byte, excerpt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		text, err := s.captioner.Caption(ctx, imgBytes, excerpt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if errors.Is(err, ErrSafetyBlocked) {
			return "", err
		}
		if !errors.Is(err, ErrNoResponse) && !domain.IsRetryable(err) {
			return "", err
		}
		if attempt == s.maxRetries {
			break
		}
		delay := s.retryBase * time.Duration(1<<(attempt-1))
		s.logger.Warn("caption attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := s.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// buildExcerpt keeps the page lines useful as caption context: drops blank
// and one-character lines and standalone warning headings, then packs lines
// front to back up to the character budget.
func buildExcerpt(pageText string) string {
	if pageText == "" {
		return ""
	}
	var kept []string
	total := 0
	for _, raw := range strings.Split(pageText, "\n") {
		line := strings.TrimSpace(raw)
		if len([]rune(line)) <= 1 {
			continue
		}
		switch line {
		case "경고", "주의", "[경고]", "[주의]":
			continue
		}
		if strings.HasPrefix(line, "경고:") || strings.HasPrefix(line, "주의:") {
			continue
		}
		if total+len([]rune(line))+1 > maxExcerptChars {
			break
		}
		kept = append(kept, line)
		total += len([]rune(line)) + 1
	}
	return strings.Join(kept, "\n")
}

// truncateCaption collapses whitespace and cuts at the last sentence
// punctuation inside the budget when one exists reasonably far in.
func truncateCaption(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= MaxCaptionChars {
		return text
	}
	region := runes[:MaxCaptionChars+1]
	lastPunct := -1
	for i, r := range region {
		switch r {
		case '.', '!', '?', '。', '！', '？':
			lastPunct = i
		}
	}
	if lastPunct >= 20 {
		return strings.TrimSpace(string(region[:lastPunct+1]))
	}
	return strings.TrimSpace(string(runes[:MaxCaptionChars]))
}

func transientReason(reason string) bool {
	if reason == "" {
		return false
	}
	r := strings.ToLower(reason)
	for _, kw := range []string{"503", "unavailable", "overloaded", "429", "rate limit"} {
		if strings.Contains(r, kw) {
			return true
		}
	}
	return false
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, ErrSafetyBlocked):
		return "safety_block"
	case errors.Is(err, ErrNoResponse):
		return "no_response"
	}
	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
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
