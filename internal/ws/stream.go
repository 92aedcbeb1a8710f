package ws

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/llm"
	"github.com/chatwire/chatwire/internal/logging"
	"github.com/chatwire/chatwire/internal/monitoring"
	"github.com/chatwire/chatwire/internal/prompt"
	"github.com/chatwire/chatwire/internal/protocol"
	"github.com/chatwire/chatwire/internal/session"
)

// Orchestrator drives generations: one per session at a time, with status
// transitions, increment forwarding, follow-up extraction, and token
// accounting.
type Orchestrator struct {
	provider  llm.Provider
	assembler *prompt.Assembler
	llmCfg    config.LLMConfig
	followUp  config.FollowUpConfig
	metrics   *monitoring.Metrics
	logger    *logging.Logger
}

// NewOrchestrator creates an orchestrator. metrics may be nil.
func NewOrchestrator(provider llm.Provider, assembler *prompt.Assembler, llmCfg config.LLMConfig, followUp config.FollowUpConfig, metrics *monitoring.Metrics, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		provider:  provider,
		assembler: assembler,
		llmCfg:    llmCfg,
		followUp:  followUp,
		metrics:   metrics,
		logger:    logger.Named("stream"),
	}
}

// Start begins a generation for one user turn. It installs the cancellation
// handle, appends the user turn, and runs the provider call on its own
// goroutine; results flow back to the session's socket. If a generation is
// already active the turn is rejected without touching session state.
func (o *Orchestrator) Start(sess *session.Session, p protocol.MessagePayload) {
	tok := llm.NewCancelToken(context.Background())
	if !sess.TryBeginGeneration(tok) {
		sess.Send(protocol.ErrorMessage{
			Code:      protocol.CodeServerError,
			Message:   "A generation is already in progress; wait for it to finish or abort it first",
			MessageID: p.MessageID,
			Retryable: false,
		})
		return
	}

	if o.metrics != nil {
		o.metrics.GenerationsStarted.Inc()
	}
	sess.Send(protocol.StatusMessage{Status: protocol.StatusTyping})

	sess.AppendMessage(protocol.ConversationMessage{
		Role:      protocol.RoleUser,
		Content:   p.Content,
		MessageID: p.MessageID,
		Timestamp: time.Now(),
	})

	// Snapshot everything the goroutine needs before handing off; the read
	// loop may mutate the session while the stream is in flight.
	followUps := sess.FollowUpEnabled(o.followUp.Enabled)
	questionCount := sess.FollowUpCount(o.followUp.Count)
	req := llm.Request{
		Messages:     sess.History(),
		SystemPrompt: o.assembler.BuildSystemPrompt(sess),
		Model:        o.llmCfg.Model,
		MaxTokens:    o.llmCfg.MaxTokens,
		Temperature:  o.llmCfg.Temperature,
	}

	started := time.Now()
	go o.provider.StreamCompletion(tok.Context(), req, llm.Callbacks{
		OnChunk: func(chunk string) {
			// Structured follow-up output is JSON; never stream it raw.
			if followUps || tok.Cancelled() {
				return
			}
			sess.Send(protocol.StreamMessage{Chunk: chunk, MessageID: p.MessageID})
		},
		OnComplete: func(resp llm.CompletionResponse) {
			o.complete(sess, tok, p.MessageID, resp, followUps, questionCount, started)
		},
		OnError: func(err error) {
			o.fail(sess, tok, p.MessageID, err)
		},
	})
}

func (o *Orchestrator) complete(sess *session.Session, tok *llm.CancelToken, messageID string, resp llm.CompletionResponse, followUps bool, questionCount int, started time.Time) {
	// A stale token means this generation was superseded; its results must
	// not touch the session.
	if !sess.ClearGeneration(tok) {
		return
	}

	content := resp.Content
	var questions []string
	if followUps {
		parsed := llm.ParseResponseWithQuestions(resp.Content, questionCount)
		content = parsed.Content
		questions = parsed.Questions
	}

	sess.AppendMessage(protocol.ConversationMessage{
		Role:      protocol.RoleAssistant,
		Content:   content,
		MessageID: messageID,
		Timestamp: time.Now(),
	})
	sess.AddTokenUsage(resp.TokenUsage)

	if o.metrics != nil {
		o.metrics.GenerationsCompleted.Inc()
		o.metrics.GenerationDuration.Observe(time.Since(started).Seconds())
		o.metrics.RecordTokens(resp.TokenUsage.Prompt, resp.TokenUsage.Completion)
	}
	o.logger.Info("Generation complete",
		zap.String("session_id", sess.ID()),
		zap.String("message_id", messageID),
		zap.Int("tokens", resp.TokenUsage.Total),
		zap.Duration("duration", time.Since(started)))

	sess.Send(protocol.CompleteMessage{
		MessageID:         messageID,
		Content:           content,
		TokenUsage:        resp.TokenUsage,
		FollowUpQuestions: questions,
		Metadata: map[string]any{
			"model":        resp.Model,
			"finishReason": resp.FinishReason,
		},
	})
	sess.Send(protocol.StatusMessage{Status: protocol.StatusIdle})
}

func (o *Orchestrator) fail(sess *session.Session, tok *llm.CancelToken, messageID string, err error) {
	if !sess.ClearGeneration(tok) {
		return
	}

	if errors.Is(err, llm.ErrAborted) || tok.Cancelled() {
		if o.metrics != nil {
			o.metrics.GenerationsAborted.Inc()
		}
		o.logger.Info("Generation aborted",
			zap.String("session_id", sess.ID()),
			zap.String("message_id", messageID))
		sess.Send(protocol.NewMessageError(protocol.CodeStreamAborted, "Generation aborted", messageID))
	} else {
		if o.metrics != nil {
			o.metrics.GenerationsFailed.Inc()
		}
		o.logger.Warn("Generation failed",
			zap.String("session_id", sess.ID()),
			zap.String("message_id", messageID),
			zap.Error(err))
		sess.Send(protocol.NewMessageError(protocol.CodeServerError, "Generation failed: "+err.Error(), messageID))
	}
	sess.Send(protocol.StatusMessage{Status: protocol.StatusIdle})
}
