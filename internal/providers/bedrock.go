package providers

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/agentrun/core/internal/errkind"
	"github.com/agentrun/core/internal/llmevent"
	"github.com/agentrun/core/internal/retry"
	"github.com/agentrun/core/pkg/models"
)

// BedrockConfig configures the Bedrock adapter's AWS SDK client. Bedrock
// has no OAuth vendor path — every credential this adapter accepts is a
// static AWS SigV4 key pair, never a refreshable token triple.
type BedrockConfig struct {
	Region     string
	MaxRetries int
	RetryDelay time.Duration
}

// BedrockAdapter streams completions via the Converse API, which unifies
// Bedrock's many foundation models (Anthropic, Titan, Llama, Mistral,
// Cohere) behind one request/response shape.
type BedrockAdapter struct {
	cfg BedrockConfig
}

func NewBedrockAdapter(cfg BedrockConfig) *BedrockAdapter {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	return &BedrockAdapter{cfg: cfg}
}

func (a *BedrockAdapter) Vendor() models.Vendor { return models.VendorBedrock }

func (a *BedrockAdapter) client(ctx context.Context, cred *models.Credential) (*bedrockruntime.Client, error) {
	if cred == nil || cred.APIKey == "" {
		return nil, errkind.New(errkind.CredentialMissing, "bedrock: credential must carry a static access-key:secret-key pair")
	}
	accessKeyID, secretAccessKey, ok := splitStaticKey(cred.APIKey)
	if !ok {
		return nil, errkind.New(errkind.InvalidCredential, "bedrock: APIKey must be \"accessKeyID:secretAccessKey\"")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(a.cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, errkind.Wrap(errkind.ModelAdapterError, "bedrock: failed to load AWS config", err)
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

func splitStaticKey(apiKey string) (accessKeyID, secretAccessKey string, ok bool) {
	for i := 0; i < len(apiKey); i++ {
		if apiKey[i] == ':' {
			return apiKey[:i], apiKey[i+1:], true
		}
	}
	return "", "", false
}

func (a *BedrockAdapter) Stream(ctx context.Context, cred *models.Credential, model string, req llmevent.StreamRequest) (llmevent.Stream, error) {
	client, err := a.client(ctx, cred)
	if err != nil {
		return nil, err
	}

	converseReq := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: convertBedrockMessages(req.Messages),
	}
	if req.System != "" {
		converseReq.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	converseReq.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(min(8192, math.MaxInt32)))}
	if len(req.Tools) > 0 {
		converseReq.ToolConfig = convertBedrockTools(req.Tools)
	}

	var stream *bedrockruntime.ConverseStreamOutput
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		stream, err = client.ConverseStream(ctx, converseReq)
		if err == nil {
			break
		}
		if !isRetryableBedrockError(err) || attempt == a.cfg.MaxRetries {
			return nil, errkind.Wrap(errkind.ModelAdapterError, "bedrock: stream start failed", err)
		}
		delay := a.cfg.RetryDelay * time.Duration(1<<uint(attempt))
		if werr := retry.SleepWithContext(ctx, delay); werr != nil {
			return nil, errkind.Wrap(errkind.Cancelled, "bedrock: retry wait cancelled", werr)
		}
	}

	out := make(chan llmevent.Event)
	go processBedrockStream(ctx, stream, out)
	return out, nil
}

func processBedrockStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, out chan<- llmevent.Event) {
	defer close(out)
	eventStream := stream.GetStream()
	defer eventStream.Close()

	var toolCallID, toolName string
	var toolInput string
	step := 0
	out <- llmevent.Event{Type: llmevent.TypeStepStart, StepNumber: step}

	eventChan := eventStream.Events()
	for {
		select {
		case <-ctx.Done():
			out <- llmevent.Event{Type: llmevent.TypeError, Err: errkind.Wrap(errkind.Cancelled, "bedrock stream", ctx.Err())}
			return

		case event, ok := <-eventChan:
			if !ok {
				if toolCallID != "" {
					out <- llmevent.Event{Type: llmevent.TypeToolCall, ToolCallID: toolCallID, ToolName: toolName, ToolInput: json.RawMessage(toolInput)}
				}
				if err := eventStream.Err(); err != nil {
					out <- llmevent.Event{Type: llmevent.TypeError, Err: errkind.Wrap(errkind.ModelAdapterError, "bedrock stream", err)}
					return
				}
				out <- llmevent.Event{Type: llmevent.TypeStepFinish, StepNumber: step}
				out <- llmevent.Event{Type: llmevent.TypeFinish, FinishReason: "stop"}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					toolCallID = aws.ToString(toolUse.Value.ToolUseId)
					toolName = aws.ToString(toolUse.Value.Name)
					toolInput = ""
					out <- llmevent.Event{Type: llmevent.TypeToolInputStart, ToolCallID: toolCallID, ToolName: toolName}
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						out <- llmevent.Event{Type: llmevent.TypeTextDelta, TextDelta: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						toolInput += *delta.Value.Input
						out <- llmevent.Event{Type: llmevent.TypeToolInputDelta, ToolCallID: toolCallID, ToolInputPartial: *delta.Value.Input}
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if toolCallID != "" {
					out <- llmevent.Event{Type: llmevent.TypeToolCall, ToolCallID: toolCallID, ToolName: toolName, ToolInput: json.RawMessage(toolInput)}
					toolCallID = ""
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				out <- llmevent.Event{Type: llmevent.TypeStepFinish, StepNumber: step}
				out <- llmevent.Event{Type: llmevent.TypeFinish, FinishReason: "stop"}
				return
			}
		}
	}
}

func convertBedrockMessages(msgs []llmevent.Message) []types.Message {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	return out
}

func convertBedrockTools(tools []llmevent.Tool) *types.ToolConfiguration {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		var schema any
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}
}

func isRetryableBedrockError(err error) bool {
	return err != nil
}
