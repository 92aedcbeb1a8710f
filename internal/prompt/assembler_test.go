package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/logging"
	"github.com/chatwire/chatwire/internal/session"
)

func newAssembler(enabled bool, count int) *Assembler {
	return NewAssembler(config.FollowUpConfig{Enabled: enabled, Count: count})
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	return session.NewStore(logging.NewNop()).Create(session.CreateOptions{})
}

func TestProcessContext(t *testing.T) {
	t.Run("system field", func(t *testing.T) {
		p := ProcessContext(map[string]any{"system": "be terse"})
		assert.Equal(t, "be terse", p.SystemPrompt)
	})

	t.Run("systemPrompt alias", func(t *testing.T) {
		p := ProcessContext(map[string]any{"systemPrompt": "be terse"})
		assert.Equal(t, "be terse", p.SystemPrompt)
	})

	t.Run("system wins over alias", func(t *testing.T) {
		p := ProcessContext(map[string]any{"system": "a", "systemPrompt": "b"})
		assert.Equal(t, "a", p.SystemPrompt)
	})

	t.Run("documents normalized", func(t *testing.T) {
		p := ProcessContext(map[string]any{
			"documents": []any{
				"plain string",
				map[string]any{"title": "Policy", "content": "body"},
				map[string]any{"unexpected": true},
				42,
			},
		})
		require.Len(t, p.Documents, 4)
		assert.Equal(t, Document{Content: "plain string"}, p.Documents[0])
		assert.Equal(t, Document{Title: "Policy", Content: "body"}, p.Documents[1])
		assert.Contains(t, p.Documents[2].Content, "unexpected")
		assert.Equal(t, "42", p.Documents[3].Content)
	})

	t.Run("remaining fields kept as extra", func(t *testing.T) {
		p := ProcessContext(map[string]any{
			"system":   "x",
			"customer": "acme",
			"tier":     "gold",
		})
		assert.Equal(t, map[string]any{"customer": "acme", "tier": "gold"}, p.Extra)
	})
}

func TestBuildSystemPromptDefaultInstructions(t *testing.T) {
	s := newSession(t)
	got := newAssembler(false, 3).BuildSystemPrompt(s)
	assert.Equal(t, DefaultInstructions, got)
}

func TestBuildSystemPromptContextSystemOverridesDefault(t *testing.T) {
	s := newSession(t)
	s.SetContext(map[string]any{"system": "X", "documents": []any{"doc1"}})

	got := newAssembler(false, 3).BuildSystemPrompt(s)

	assert.True(t, strings.HasPrefix(got, "X"), "prompt should start with the context system prompt")
	assert.NotContains(t, got, DefaultInstructions)
	assert.Contains(t, got, "--- Reference Documents ---")
	assert.Contains(t, got, "[Document 1]\ndoc1")
}

func TestBuildSystemPromptCustomInstructionsTakePrecedence(t *testing.T) {
	s := newSession(t)
	s.SetInstructions("always answer in haiku")
	s.SetContext(map[string]any{"system": "X"})

	got := newAssembler(false, 3).BuildSystemPrompt(s)

	assert.True(t, strings.HasPrefix(got, "always answer in haiku"))
	assert.NotContains(t, got, "X\n")
	assert.False(t, strings.HasPrefix(got, "X"))
}

func TestBuildSystemPromptDocumentTitles(t *testing.T) {
	s := newSession(t)
	s.SetContext(map[string]any{"documents": []any{
		map[string]any{"title": "Contract", "content": "terms"},
		"untitled body",
	}})

	got := newAssembler(false, 3).BuildSystemPrompt(s)

	assert.Contains(t, got, "[Document 1: Contract]\nterms")
	assert.Contains(t, got, "[Document 2]\nuntitled body")
}

func TestBuildSystemPromptAdditionalData(t *testing.T) {
	s := newSession(t)
	s.SetContext(map[string]any{"customer": "acme", "tier": "gold"})

	a := newAssembler(false, 3)
	got := a.BuildSystemPrompt(s)

	assert.Contains(t, got, "--- Additional Data ---")
	assert.Contains(t, got, `"customer": "acme"`)
	// Same state must yield the same string.
	assert.Equal(t, got, a.BuildSystemPrompt(s))
}

func TestBuildSystemPromptFollowUpBlock(t *testing.T) {
	s := newSession(t)

	got := newAssembler(true, 3).BuildSystemPrompt(s)
	assert.Contains(t, got, "3 follow-up questions")
	assert.Contains(t, got, `"questions"`)

	s.UpdateMetadata(map[string]any{session.MetaFollowUpCount: 5}, true)
	got = newAssembler(true, 3).BuildSystemPrompt(s)
	assert.Contains(t, got, "5 follow-up questions")

	s.UpdateMetadata(map[string]any{session.MetaDisableFollowUp: true}, true)
	got = newAssembler(true, 3).BuildSystemPrompt(s)
	assert.NotContains(t, got, "follow-up questions")
}
