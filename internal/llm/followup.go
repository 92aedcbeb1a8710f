package llm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// ParsedResponse splits a structured model response into display text and
// follow-up suggestions.
type ParsedResponse struct {
	Content   string
	Questions []string
}

const followUpInstruction = `
After your answer, produce {count} follow-up questions the user may want to ask next.
Respond in JSON format only:
{
  "response": "your answer here",
  "questions": ["question 1?", "question 2?", "question 3?"]
}
Important: return valid JSON only, without code blocks or extra text.`

// BuildFollowUpInstruction returns the system prompt block that asks the
// model for a structured response with count follow-up questions.
func BuildFollowUpInstruction(count int) string {
	return strings.ReplaceAll(followUpInstruction, "{count}", strconv.Itoa(count))
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// structuredResponse is the shape the model is instructed to emit.
type structuredResponse struct {
	Response  *string `json:"response"`
	Questions []any   `json:"questions"`
}

// ParseResponseWithQuestions extracts display content and follow-up questions
// from raw model output. Best effort: direct JSON parse first, then a fenced
// code block, then the whole text as plain content with no questions. It
// never fails past its own boundary.
func ParseResponseWithQuestions(raw string, maxQuestions int) ParsedResponse {
	if parsed, ok := tryParse(raw, maxQuestions); ok {
		return parsed
	}

	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		if parsed, ok := tryParse(strings.TrimSpace(m[1]), maxQuestions); ok {
			return parsed
		}
	}

	return ParsedResponse{Content: raw, Questions: []string{}}
}

func tryParse(text string, maxQuestions int) (ParsedResponse, bool) {
	var sr structuredResponse
	if err := sonic.UnmarshalString(text, &sr); err != nil {
		return ParsedResponse{}, false
	}
	if sr.Response == nil || sr.Questions == nil {
		return ParsedResponse{}, false
	}

	questions := make([]string, 0, len(sr.Questions))
	for _, q := range sr.Questions {
		s, ok := q.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		if len(questions) == maxQuestions {
			break
		}
		questions = append(questions, s)
	}

	return ParsedResponse{Content: *sr.Response, Questions: questions}, true
}
