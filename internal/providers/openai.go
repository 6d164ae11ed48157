package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentrun/core/internal/errkind"
	"github.com/agentrun/core/internal/llmevent"
	"github.com/agentrun/core/pkg/models"
)

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIAdapter streams chat completions from OpenAI, reassembling the
// indexed tool-call delta fragments the Chat Completions API sends into
// the engine's tool-input-delta/tool-call pair.
type OpenAIAdapter struct {
	cfg OpenAIConfig
}

func NewOpenAIAdapter(cfg OpenAIConfig) *OpenAIAdapter {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	return &OpenAIAdapter{cfg: cfg}
}

func (a *OpenAIAdapter) Vendor() models.Vendor { return models.VendorOpenAI }

func (a *OpenAIAdapter) client(cred *models.Credential) (*openai.Client, error) {
	if cred == nil || cred.APIKey == "" {
		return nil, errkind.New(errkind.CredentialMissing, "openai: no API key credential")
	}
	config := openai.DefaultConfig(cred.APIKey)
	if a.cfg.BaseURL != "" {
		config.BaseURL = a.cfg.BaseURL
	}
	c := openai.NewClientWithConfig(config)
	return c, nil
}

func (a *OpenAIAdapter) Stream(ctx context.Context, cred *models.Credential, model string, req llmevent.StreamRequest) (llmevent.Stream, error) {
	client, err := a.client(cred)
	if err != nil {
		return nil, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertOpenAIMessages(req.Messages, req.System),
		Stream:   true,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	var stream *openai.ChatCompletionStream
	for attempt := 0; attempt < a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errkind.Wrap(errkind.Cancelled, "openai: retry wait cancelled", ctx.Err())
			case <-time.After(a.cfg.RetryDelay * time.Duration(attempt)):
			}
		}
		stream, err = client.CreateChatCompletionStream(ctx, chatReq)
		if err == nil {
			break
		}
		if !isRetryableOpenAIError(err) {
			return nil, errkind.Wrap(errkind.ModelAdapterError, "openai: non-retryable", err)
		}
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.ModelAdapterError, "openai: max retries exceeded", err)
	}

	out := make(chan llmevent.Event)
	go processOpenAIStream(stream, out)
	return out, nil
}

func processOpenAIStream(stream *openai.ChatCompletionStream, out chan<- llmevent.Event) {
	defer close(out)
	defer stream.Close()

	type building struct {
		id, name string
		args     string
		started  bool
	}
	toolCalls := map[int]*building{}
	started := false
	step := 0

	emit := func(ev llmevent.Event) { out <- ev }

	flushToolCalls := func() {
		for _, tc := range toolCalls {
			if tc.id == "" || tc.name == "" {
				continue
			}
			emit(llmevent.Event{
				Type:       llmevent.TypeToolCall,
				ToolCallID: tc.id,
				ToolName:   tc.name,
				ToolInput:  json.RawMessage(tc.args),
			})
		}
		toolCalls = map[int]*building{}
	}

	for {
		response, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				flushToolCalls()
				emit(llmevent.Event{Type: llmevent.TypeStepFinish, StepNumber: step})
				emit(llmevent.Event{Type: llmevent.TypeFinish, FinishReason: "stop"})
				return
			}
			emit(llmevent.Event{Type: llmevent.TypeError, Err: errkind.Wrap(errkind.ModelAdapterError, "openai stream", err)})
			return
		}
		if !started {
			emit(llmevent.Event{Type: llmevent.TypeStepStart, StepNumber: step})
			started = true
		}
		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			emit(llmevent.Event{Type: llmevent.TypeTextDelta, TextDelta: delta.Content})
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			b, ok := toolCalls[idx]
			if !ok {
				b = &building{}
				toolCalls[idx] = b
			}
			if tc.ID != "" {
				b.id = tc.ID
			}
			if tc.Function.Name != "" {
				b.name = tc.Function.Name
				if !b.started {
					emit(llmevent.Event{Type: llmevent.TypeToolInputStart, ToolCallID: b.id, ToolName: b.name})
					b.started = true
				}
			}
			if tc.Function.Arguments != "" {
				b.args += tc.Function.Arguments
				emit(llmevent.Event{Type: llmevent.TypeToolInputDelta, ToolCallID: b.id, ToolInputPartial: tc.Function.Arguments})
			}
		}

		if choice.FinishReason == "tool_calls" {
			flushToolCalls()
		}
	}
}

func convertOpenAIMessages(msgs []llmevent.Message, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func convertOpenAITools(tools []llmevent.Tool) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var params map[string]interface{}
		_ = json.Unmarshal(t.Schema, &params)
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return out
}

func isRetryableOpenAIError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	return false
}
