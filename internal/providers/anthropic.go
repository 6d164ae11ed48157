package providers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentrun/core/internal/errkind"
	"github.com/agentrun/core/internal/llmevent"
	"github.com/agentrun/core/internal/retry"
	"github.com/agentrun/core/pkg/models"
)

// AnthropicConfig configures the Anthropic adapter. BaseURL is only set in
// tests against a fake endpoint.
type AnthropicConfig struct {
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// AnthropicAdapter streams completions from Anthropic's Messages API,
// translating content-block SSE events into the engine's event alphabet.
// A credential is supplied per call rather than at construction, since one
// adapter instance serves every user's resolved credential.
type AnthropicAdapter struct {
	cfg AnthropicConfig
}

// NewAnthropicAdapter builds an adapter with MaxRetries=3, RetryDelay=1s
// defaults when unset.
func NewAnthropicAdapter(cfg AnthropicConfig) *AnthropicAdapter {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	return &AnthropicAdapter{cfg: cfg}
}

func (a *AnthropicAdapter) Vendor() models.Vendor { return models.VendorAnthropic }

// client builds a per-call SDK client bound to the resolved credential: a
// static API key, or an OAuth bearer header for subscription-auth vendors.
// OAuth calls also carry the anthropic-beta flags for OAuth auth and
// interleaved thinking; static-key calls send no beta header.
func (a *AnthropicAdapter) client(cred *models.Credential) (anthropic.Client, error) {
	opts := []option.RequestOption{}
	switch {
	case cred == nil:
		return anthropic.Client{}, errkind.New(errkind.CredentialMissing, "anthropic: no credential resolved")
	case cred.IsOAuth():
		opts = append(opts, option.WithHeader("Authorization", "Bearer "+cred.OAuth.Access))
		opts = append(opts, option.WithHeader("anthropic-beta", "oauth-2025-04-20,interleaved-thinking-2025-05-14"))
	case cred.APIKey != "":
		opts = append(opts, option.WithAPIKey(cred.APIKey))
	default:
		return anthropic.Client{}, errkind.New(errkind.CredentialMissing, "anthropic: credential has neither API key nor OAuth token")
	}
	if a.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.cfg.BaseURL))
	}
	return anthropic.NewClient(opts...), nil
}

func (a *AnthropicAdapter) Stream(ctx context.Context, cred *models.Credential, model string, req llmevent.StreamRequest) (llmevent.Stream, error) {
	client, err := a.client(cred)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  convertMessages(req.Messages),
		MaxTokens: 8192,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		stream = client.Messages.NewStreaming(ctx, params)
		if !streamStartErr(stream) {
			break
		}
		streamErr := stream.Err()
		if !isRetryableAnthropicError(streamErr) || attempt == a.cfg.MaxRetries {
			return nil, errkind.Wrap(errkind.ModelAdapterError, "anthropic: stream start failed", streamErr)
		}
		delay := a.cfg.RetryDelay * time.Duration(math.Pow(2, float64(attempt)))
		if err := retry.SleepWithContext(ctx, delay); err != nil {
			return nil, errkind.Wrap(errkind.Cancelled, "anthropic: retry wait cancelled", err)
		}
	}

	out := make(chan llmevent.Event)
	go processAnthropicStream(stream, model, out)
	return out, nil
}

// streamStartErr probes whether the stream's first read already failed,
// without consuming an event the caller would otherwise expect to see.
func streamStartErr(stream *ssestream.Stream[anthropic.MessageStreamEventUnion]) bool {
	return stream == nil || stream.Err() != nil
}

func processAnthropicStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], model string, out chan<- llmevent.Event) {
	defer close(out)

	var toolCallID, toolName string
	var toolInput strings.Builder
	var inputTokens, outputTokens int
	step := 0

	out <- llmevent.Event{Type: llmevent.TypeStepStart, StepNumber: step}

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				toolCallID = tu.ID
				toolName = tu.Name
				toolInput.Reset()
				out <- llmevent.Event{Type: llmevent.TypeToolInputStart, ToolCallID: toolCallID, ToolName: toolName}
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- llmevent.Event{Type: llmevent.TypeTextDelta, TextDelta: delta.Text}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					out <- llmevent.Event{Type: llmevent.TypeReasoningDelta, ReasoningDelta: delta.Thinking}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					toolInput.WriteString(delta.PartialJSON)
					out <- llmevent.Event{Type: llmevent.TypeToolInputDelta, ToolCallID: toolCallID, ToolInputPartial: delta.PartialJSON}
				}
			}

		case "content_block_stop":
			if toolCallID != "" {
				out <- llmevent.Event{
					Type:       llmevent.TypeToolCall,
					ToolCallID: toolCallID,
					ToolName:   toolName,
					ToolInput:  []byte(toolInput.String()),
				}
				toolCallID = ""
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}

		case "message_stop":
			out <- llmevent.Event{Type: llmevent.TypeStepFinish, StepNumber: step}
			out <- llmevent.Event{
				Type:         llmevent.TypeFinish,
				FinishReason: "stop",
				Usage:        llmevent.Usage{InputTokens: inputTokens, OutputTokens: outputTokens},
			}
			return

		case "error":
			out <- llmevent.Event{Type: llmevent.TypeError, Err: errkind.New(errkind.ModelAdapterError, "anthropic stream error")}
			return
		}
	}

	if err := stream.Err(); err != nil {
		out <- llmevent.Event{Type: llmevent.TypeError, Err: errkind.Wrap(errkind.ModelAdapterError, "anthropic: "+model, err)}
	}
}

func convertMessages(msgs []llmevent.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func convertTools(tools []llmevent.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: toolInputSchema(t.Schema),
			},
		})
	}
	return out
}

func toolInputSchema(raw []byte) anthropic.ToolInputSchemaParam {
	var parsed struct {
		Type       string                 `json:"type"`
		Properties map[string]interface{} `json:"properties"`
		Required   []string               `json:"required"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return anthropic.ToolInputSchemaParam{Type: "object"}
	}
	return anthropic.ToolInputSchemaParam{
		Type:       "object",
		Properties: parsed.Properties,
		Required:   parsed.Required,
	}
}

func isRetryableAnthropicError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	msg := err.Error()
	for _, s := range []string{"rate_limit", "429", "timeout", "deadline exceeded", "connection reset", "connection refused"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
