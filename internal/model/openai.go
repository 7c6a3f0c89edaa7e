package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client via an OpenAI-compatible chat-completions
// API, translating goa-ai-style requests into ChatCompletion calls the way
// the teacher's features/model/openai adapter does, generalized to also
// decode tool calls (which the teacher adapter already supports) rather
// than only text content.
type OpenAIClient struct {
	chat         chatClient
	defaultModel string
}

// chatClient captures the subset of *openai.Client this adapter exercises,
// so tests can substitute a fake without standing up an HTTP server.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewOpenAIClient builds a gateway client pointed at baseURL with apiKey,
// defaulting to defaultModel when a Request does not specify one.
func NewOpenAIClient(baseURL, apiKey, defaultModel string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("model gateway api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{chat: openai.NewClientWithConfig(cfg), defaultModel: defaultModel}, nil
}

// Complete renders a chat completion, encoding Tools as OpenAI function
// tools and decoding any tool calls the model chose to make.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	tools, err := encodeTools(req.Tools)
	if err != nil {
		return Response{}, err
	}

	ccReq := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       tools,
	}
	if req.ToolChoice != "" {
		ccReq.ToolChoice = req.ToolChoice
	}

	resp, err := c.chat.CreateChatCompletion(ctx, ccReq)
	if err != nil {
		return Response{}, fmt.Errorf("model gateway chat completion: %w", err)
	}
	return translate(resp), nil
}

func encodeTools(defs []ToolDefinition) ([]openai.Tool, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		params, err := json.Marshal(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal tool %s schema: %w", def.Name, err)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return out, nil
}

func translate(resp openai.ChatCompletionResponse) Response {
	if len(resp.Choices) == 0 {
		return Response{}
	}
	choice := resp.Choices[0]
	out := Response{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:      call.ID,
			Name:    call.Function.Name,
			Payload: parseArguments(call.Function.Arguments),
		})
	}
	return out
}

func parseArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	return out
}
