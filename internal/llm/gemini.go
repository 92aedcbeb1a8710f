package llm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/logging"
	"github.com/chatwire/chatwire/internal/protocol"
	"go.uber.org/zap"
)

// GeminiProvider streams completions from the Gemini generateContentStream
// API over SSE.
type GeminiProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *logging.Logger
}

// NewGeminiProvider creates a Gemini-backed provider from config.
func NewGeminiProvider(cfg config.LLMConfig, logger *logging.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	return &GeminiProvider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  logger.Named("gemini"),
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiChunk struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// convertHistory maps conversation turns onto Gemini contents. System turns
// are filtered, the system prompt travels separately.
func convertHistory(messages []protocol.ConversationMessage) []geminiContent {
	contents := make([]geminiContent, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == protocol.RoleSystem {
			continue
		}
		role := "user"
		if msg.Role == protocol.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	return contents
}

// StreamCompletion implements Provider. It blocks until the stream finishes,
// fails, or ctx is cancelled.
func (p *GeminiProvider) StreamCompletion(ctx context.Context, req Request, cb Callbacks) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	body := geminiRequest{
		Contents: convertHistory(req.Messages),
		GenerationConfig: &geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		cb.OnError(fmt.Errorf("gemini: marshal request: %w", err))
		return
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", p.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		cb.OnError(fmt.Errorf("gemini: build request: %w", err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		cb.OnError(p.classify(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		cb.OnError(fmt.Errorf("gemini: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
		return
	}

	var (
		fullContent  strings.Builder
		promptTokens int
		outputTokens int
		finishReason = "STOP"
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk geminiChunk
		if err := sonic.UnmarshalString(data, &chunk); err != nil {
			p.logger.Debug("Skipping unparseable SSE chunk", zap.Error(err))
			continue
		}

		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					fullContent.WriteString(part.Text)
					cb.OnChunk(part.Text)
				}
			}
			if cand.FinishReason != "" {
				finishReason = cand.FinishReason
			}
		}
		if chunk.UsageMetadata != nil {
			promptTokens = chunk.UsageMetadata.PromptTokenCount
			outputTokens = chunk.UsageMetadata.CandidatesTokenCount
		}
	}

	if err := scanner.Err(); err != nil {
		cb.OnError(p.classify(err))
		return
	}
	if ctx.Err() != nil {
		cb.OnError(ErrAborted)
		return
	}

	cb.OnComplete(CompletionResponse{
		Content: fullContent.String(),
		TokenUsage: protocol.TokenUsage{
			Prompt:     promptTokens,
			Completion: outputTokens,
			Total:      promptTokens + outputTokens,
		},
		Model:        model,
		FinishReason: finishReason,
	})

	p.logger.Debug("Completion finished",
		zap.String("model", model),
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("completion_tokens", outputTokens),
		zap.String("finish_reason", finishReason),
	)
}

// classify maps transport errors onto the abort sentinel when the context was
// cancelled mid-stream.
func (p *GeminiProvider) classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return ErrAborted
	}
	return fmt.Errorf("gemini: stream: %w", err)
}
