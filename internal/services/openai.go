package services

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type OpenAIVerifier struct {
	client openai.Client
	model  string
}

func NewOpenAIVerifier(apiKey, model string) *OpenAIVerifier {
	return &OpenAIVerifier{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (o *OpenAIVerifier) Verify(ctx context.Context, question, answer string) (*SemanticVerdict, error) {
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(validatorSystemPrompt),
			openai.UserMessage(buildVerifierUserMessage(question, answer)),
		},
		Model:       openai.ChatModel(o.model),
		Temperature: openai.Float(0),
		Seed:        openai.Int(0),
	})
	if err != nil {
		return nil, &ExternalServiceError{Provider: "openai", Err: err}
	}
	if len(completion.Choices) == 0 {
		return nil, &ExternalServiceError{Provider: "openai", Err: fmt.Errorf("no choices returned")}
	}

	verdict, err := ParseVerdict(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, &ExternalServiceError{Provider: "openai", Err: err}
	}
	return verdict, nil
}
