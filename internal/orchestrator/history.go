package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentrun/core/internal/llmevent"
	"github.com/agentrun/core/internal/store"
	"github.com/agentrun/core/pkg/models"
)

// loadPriorHistory concatenates each prior session message's text parts
// into one flat turn, role preserved in order. It must be called before
// the current turn's user/assistant messages are persisted — "prior"
// means strictly prior to this turn, per the contract's instruction to
// discard the DB copy of the fresh utterance in favour of the raw
// argument.
func loadPriorHistory(ctx context.Context, messages store.Messages, parts store.MessageParts, sessionID string) ([]llmevent.Message, error) {
	msgs, err := messages.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]llmevent.Message, 0, len(msgs))
	for _, m := range msgs {
		msgParts, err := parts.ListByMessage(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		var text strings.Builder
		for _, p := range msgParts {
			if p.Type != models.PartText || len(p.Content) == 0 {
				continue
			}
			var tc models.TextContent
			if err := json.Unmarshal(p.Content, &tc); err == nil {
				text.WriteString(tc.Text)
			}
		}
		out = append(out, llmevent.Message{Role: string(m.Role), Content: text.String()})
	}
	return out, nil
}

// toolRoundEntry records one tool invocation made during a model step, so
// it can be folded back into the flat text history before the next
// adapter call.
type toolRoundEntry struct {
	Name    string
	Input   json.RawMessage
	Output  string
	IsError bool
}

// appendToolRound folds a completed round of tool calls into the message
// history as a synthetic assistant/user exchange. The adapters in this
// engine carry history as flat text turns rather than structured
// tool-use/tool-result blocks, so a round trip is rendered as plain text
// the model can read back as its own prior turn.
func appendToolRound(history []llmevent.Message, round []toolRoundEntry) []llmevent.Message {
	if len(round) == 0 {
		return history
	}
	var calls strings.Builder
	var results strings.Builder
	for i, r := range round {
		if i > 0 {
			calls.WriteString("\n")
			results.WriteString("\n")
		}
		fmt.Fprintf(&calls, "[tool call] %s(%s)", r.Name, string(r.Input))
		status := "ok"
		if r.IsError {
			status = "error"
		}
		fmt.Fprintf(&results, "[tool result %s] %s: %s", status, r.Name, r.Output)
	}
	return append(history,
		llmevent.Message{Role: string(models.RoleAssistant), Content: calls.String()},
		llmevent.Message{Role: string(models.RoleUser), Content: results.String()},
	)
}
