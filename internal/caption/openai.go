package caption

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/manualdex/internal/domain"
	"github.com/kailas-cloud/manualdex/internal/metrics"
)

var (
	// ErrSafetyBlocked marks a caption refused by the provider's content filter.
	ErrSafetyBlocked = fmt.Errorf("caption blocked by content filter: %w", domain.ErrCaptionProviderError)
	// ErrNoResponse marks an empty completion.
	ErrNoResponse = fmt.Errorf("caption response empty: %w", domain.ErrCaptionProviderError)
)

// systemPrompt asks for an accessibility description of a manual figure in
// plain Korean: product shape, viewing direction, visible parts and their
// positions, labels read aloud, no invented colors or hazards.
const systemPrompt = `너는 전자제품 사용 설명서에 실린 그림을 설명하는 접근성 전문가이다.
시각장애인과 노인도 이해할 수 있도록 쉬운 한국어 평서문으로 그림을 묘사하라.
제품의 종류와 전체 형태, 어느 방향에서 본 모습인지, 주요 부품의 이름과 위치 관계를
위에서 아래로 차례대로 설명하고, 그림 안의 한글 레이블이 보이면 읽어서 어떤 부품인지 말하라.
색이나 재질, 위험 상황을 상상해서 말하지 말고, 지금 보이는 상태만 3~4문장으로 설명하라.`

const excerptHeader = `[참고용 설명서 발췌]
아래 텍스트는 이 그림이 포함된 설명서의 일부이다. 그대로 복사하지 말고,
그림에서 실제로 볼 수 있는 내용만 묘사하라.`

// OpenAICaptioner generates figure captions with an OpenAI-compatible
// vision chat model.
type OpenAICaptioner struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

func NewOpenAICaptioner(cfg *OpenAIConfig) *OpenAICaptioner {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &OpenAICaptioner{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: log,
	}
}

func (c *OpenAICaptioner) Model() string { return c.model }

// Caption implements domain.Captioner. The image goes in as a base64 data
// URL part, the surrounding manual text as an extra text part.
func (c *OpenAICaptioner) Caption(ctx context.Context, imageBytes []byte, contextText string) (string, error) {
	parts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(imageBytes),
				Detail: openai.ImageURLDetailAuto,
			},
		},
	}
	if contextText != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: excerptHeader + "\n----\n" + contextText + "\n----",
		})
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		metrics.CaptionRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", parseAPIError(err)
	}
	metrics.CaptionRequestsTotal.WithLabelValues(c.model, "ok").Inc()
	c.logger.Debug("caption request completed",
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)))

	if len(resp.Choices) == 0 {
		return "", ErrNoResponse
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", ErrSafetyBlocked
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", ErrNoResponse
	}
	return text, nil
}

func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return domain.NewProviderStatus(domain.ErrCaptionProviderError, reqErr.HTTPStatusCode, extractDetail(reqErr))
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewProviderStatus(domain.ErrCaptionProviderError, apiErr.HTTPStatusCode, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", domain.ErrCaptionProviderError, err)
}

func extractDetail(reqErr *openai.RequestError) string {
	if len(reqErr.Body) > 0 {
		return string(reqErr.Body)
	}
	if reqErr.Err != nil {
		return reqErr.Err.Error()
	}
	return reqErr.Error()
}
