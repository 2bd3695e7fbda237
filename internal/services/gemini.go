package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

type GeminiVerifier struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiVerifier(ctx context.Context, apiKey, modelName string) (*GeminiVerifier, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.SetTopP(0.95)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(validatorSystemPrompt)},
	}

	return &GeminiVerifier{client: client, model: model}, nil
}

func (g *GeminiVerifier) Close() {
	g.client.Close()
}

func (g *GeminiVerifier) Verify(ctx context.Context, question, answer string) (*SemanticVerdict, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(buildVerifierUserMessage(question, answer)))
	if err != nil {
		return nil, &ExternalServiceError{Provider: "gemini", Err: err}
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Warn().Int("candidate", i).Str("finish_reason", cand.FinishReason.String()).
				Msg("gemini verifier stopped early")
		}
	}

	raw := extractText(resp)
	if strings.TrimSpace(raw) == "" {
		return nil, &ExternalServiceError{Provider: "gemini", Err: fmt.Errorf("empty response")}
	}

	verdict, err := ParseVerdict(raw)
	if err != nil {
		return nil, &ExternalServiceError{Provider: "gemini", Err: err}
	}
	return verdict, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
