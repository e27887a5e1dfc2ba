package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"golang.org/x/sync/semaphore"

	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/common/config"
)

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint. A
// weighted semaphore caps concurrent in-flight completions across all
// conversations.
type OpenAIClient struct {
	client   openai.Client
	model    string
	inflight *semaphore.Weighted
}

// NewOpenAIClient builds a client from the agent configuration.
func NewOpenAIClient(cfg config.AgentConfig) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxInflight := int64(cfg.MaxInflight)
	if maxInflight <= 0 {
		maxInflight = 4
	}
	return &OpenAIClient{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		inflight: semaphore.NewWeighted(maxInflight),
	}
}

// Complete runs one chat completion, blocking while the in-flight limit is
// reached.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return nil, apperr.Wrap(apperr.Deadline, "completion slot unavailable", err)
	}
	defer c.inflight.Release(1)

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: buildMessages(req),
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(
			openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.Parameters),
			}))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, apperr.Transientf("model returned no choices")
	}

	message := completion.Choices[0].Message
	resp := &Response{Content: message.Content}
	for _, call := range message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return resp, nil
}

func buildMessages(req *Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				messages = append(messages, assistantToolCallMessage(msg))
			} else {
				messages = append(messages, openai.AssistantMessage(msg.Content))
			}
		case RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages
}

// assistantToolCallMessage rebuilds an assistant turn that requested tool
// calls; the follow-up completion needs it verbatim in the history.
func assistantToolCallMessage(msg Message) openai.ChatCompletionMessageParamUnion {
	param := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		param.Content.OfString = openai.String(msg.Content)
	}
	for _, call := range msg.ToolCalls {
		param.ToolCalls = append(param.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &param}
}

// mapError classifies provider failures: rate limits and server errors are
// retryable, other API rejections are not.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.Deadline, "completion timed out", err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
			return apperr.Wrap(apperr.Transient, "model provider unavailable", err)
		default:
			return apperr.Wrap(apperr.Permanent, "model request rejected", err)
		}
	}
	// Network-level failures are retryable.
	return apperr.Wrap(apperr.Transient, "completion failed", err)
}
