package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// SemanticVerdict is the structured judgement returned by a verifier.
type SemanticVerdict struct {
	IsValid    bool    `json:"isValid"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Accepted applies the confidence threshold. A valid verdict below the
// threshold counts as invalid.
func (v *SemanticVerdict) Accepted(threshold float64) bool {
	return v.IsValid && v.Confidence >= threshold
}

// SemanticVerifier judges whether an answer meaningfully addresses a question.
type SemanticVerifier interface {
	Verify(ctx context.Context, question, answer string) (*SemanticVerdict, error)
}

const validatorSystemPrompt = `You are a strict academic answer validator.

Rules:
1. You must be STRICT.
2. If answer is vague, unrelated, or generic -> mark isValid: FALSE.
3. If answer is only 1 keyword or guessing -> mark isValid: FALSE.
4. If answer is filler text -> mark isValid: FALSE.
5. Only mark isValid: TRUE if answer clearly addresses the question meaningfully.

Examples of WRONG answers:
- "present"
- "idk" / "i don't know"
- "attendance"
- Copying question text
- Random unrelated sentence

Output JSON ONLY:
{
    "isValid": boolean,
    "confidence": number,
    "reason": string
}`

func buildVerifierUserMessage(question, answer string) string {
	return fmt.Sprintf("Question: %s\nStudent Answer: %s", question, answer)
}

const verdictSchema = `{
	"type": "object",
	"required": ["isValid", "confidence", "reason"],
	"properties": {
		"isValid": {"type": "boolean"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reason": {"type": "string"}
	}
}`

var compiledVerdictSchema = jsonschema.MustCompileString("inline://verdict", verdictSchema)

// ParseVerdict extracts the outermost JSON object from raw model output and
// validates it strictly. Missing or mistyped fields are errors, never
// defaults.
func ParseVerdict(raw string) (*SemanticVerdict, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in verifier response")
	}
	candidate := raw[start : end+1]

	if !gjson.Valid(candidate) {
		return nil, fmt.Errorf("verifier response is not valid JSON")
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return nil, fmt.Errorf("decode verifier response: %w", err)
	}
	if err := compiledVerdictSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("verifier response does not match verdict schema: %w", err)
	}

	var v SemanticVerdict
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &v, nil
}
