package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/llm"
	"github.com/chatwire/chatwire/internal/session"
)

// DefaultInstructions is the fixed instruction template used when a session
// has no custom instructions and its context supplies no system prompt.
const DefaultInstructions = `You are a helpful assistant.
Answer strictly from the reference documents and additional data provided.
If the answer is not in the provided information, say so clearly.`

// Document is a normalized context document.
type Document struct {
	Title   string
	Content string
}

// ProcessedContext is a context object normalized for prompt assembly.
type ProcessedContext struct {
	SystemPrompt string
	Documents    []Document
	Extra        map[string]any
}

// ProcessContext shape-sniffs a raw context object. A system/systemPrompt
// string field becomes the system prompt; a documents array is normalized
// (strings, {title, content} objects, or anything else serialized verbatim);
// remaining fields are kept as extra data. Lenient by policy: malformed
// documents are coerced, never rejected.
func ProcessContext(data map[string]any) ProcessedContext {
	var out ProcessedContext

	if s, ok := data["system"].(string); ok {
		out.SystemPrompt = s
	} else if s, ok := data["systemPrompt"].(string); ok {
		out.SystemPrompt = s
	}

	if docs, ok := data["documents"].([]any); ok {
		out.Documents = make([]Document, 0, len(docs))
		for _, raw := range docs {
			out.Documents = append(out.Documents, normalizeDocument(raw))
		}
	}

	for k, v := range data {
		if k == "system" || k == "systemPrompt" || k == "documents" {
			continue
		}
		if out.Extra == nil {
			out.Extra = map[string]any{}
		}
		out.Extra[k] = v
	}

	return out
}

func normalizeDocument(raw any) Document {
	switch doc := raw.(type) {
	case string:
		return Document{Content: doc}
	case map[string]any:
		out := Document{}
		if title, ok := doc["title"].(string); ok {
			out.Title = title
		}
		if content, ok := doc["content"].(string); ok {
			out.Content = content
		} else {
			// No usable content field: serialize the whole object.
			out.Content = serialize(doc)
		}
		return out
	default:
		return Document{Content: fmt.Sprintf("%v", raw)}
	}
}

// serialize renders a value deterministically (encoding/json sorts map keys,
// which keeps assembled prompts reproducible).
func serialize(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Assembler builds the model-facing system prompt from session state.
type Assembler struct {
	followUp config.FollowUpConfig
}

// NewAssembler creates an assembler with the global follow-up defaults.
func NewAssembler(followUp config.FollowUpConfig) *Assembler {
	return &Assembler{followUp: followUp}
}

// BuildSystemPrompt composes, in order: custom instructions (or the default
// template, or the context's system prompt when no custom instructions were
// set), the reference-documents block, the additional-data block, and the
// follow-up instruction block when enabled. Deterministic: same session
// state, same string.
func (a *Assembler) BuildSystemPrompt(s *session.Session) string {
	var parts []string

	instructions := s.Instructions()
	if instructions != "" {
		parts = append(parts, instructions)
	} else {
		parts = append(parts, DefaultInstructions)
	}

	if ctx := s.Context(); ctx != nil {
		processed := ProcessContext(ctx)

		if processed.SystemPrompt != "" && instructions == "" {
			parts[0] = processed.SystemPrompt
		}

		if len(processed.Documents) > 0 {
			parts = append(parts, "\n\n--- Reference Documents ---\n")
			for i, doc := range processed.Documents {
				if doc.Title != "" {
					parts = append(parts, fmt.Sprintf("\n[Document %d: %s]\n%s\n", i+1, doc.Title, doc.Content))
				} else {
					parts = append(parts, fmt.Sprintf("\n[Document %d]\n%s\n", i+1, doc.Content))
				}
			}
		}

		if len(processed.Extra) > 0 {
			parts = append(parts, fmt.Sprintf("\n\n--- Additional Data ---\n%s", serialize(processed.Extra)))
		}
	}

	if s.FollowUpEnabled(a.followUp.Enabled) {
		count := s.FollowUpCount(a.followUp.Count)
		parts = append(parts, "\n\n"+llm.BuildFollowUpInstruction(count))
	}

	return strings.Join(parts, "")
}
