package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xaenox/campus-chat/internal/models"
	"github.com/xaenox/campus-chat/internal/tools"
	"go.uber.org/zap"
)

const (
	defaultMaxSteps = 5

	// genericErrorText is the only fault text clients ever see once a
	// stream has started.
	genericErrorText = "Oops, an error occurred!"
)

type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64
	MaxSteps    int
}

// Assistant turns one conversation into a streamed response, arbitrating
// the registered tools across a bounded number of generation steps.
type Assistant struct {
	backend  Backend
	registry *tools.Registry
	config   Config
	logger   *zap.Logger
}

func New(backend Backend, registry *tools.Registry, config Config, logger *zap.Logger) *Assistant {
	if config.MaxSteps <= 0 {
		config.MaxSteps = defaultMaxSteps
	}
	return &Assistant{
		backend:  backend,
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// Stream drives the generation loop for one request. All faults after
// the first event are reported in-stream; the returned error is non-nil
// only when the client is gone or the context is done.
func (a *Assistant) Stream(ctx context.Context, conv models.Conversation, w EventWriter) error {
	msgs := a.buildModelMessages(conv)

	// Re-entrant continuation: when the last part of the last message is
	// an approval decision for a pending call, settle that call first
	// and resume generation without a new user turn.
	if part := conv.LastPart(); part != nil && part.Type == models.PartToolApproval {
		resumed, err := a.settleApproval(ctx, conv, msgs, part, w)
		if err != nil {
			return err
		}
		msgs = resumed
	}

	for step := 0; step < a.config.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		stream, err := a.backend.StreamCompletion(ctx, openai.ChatCompletionRequest{
			Model:       a.config.Model,
			Messages:    msgs,
			Tools:       a.toolDefinitions(),
			MaxTokens:   a.config.MaxTokens,
			Temperature: float32(a.config.Temperature),
		})
		if err != nil {
			a.logger.Error("Failed to start model stream", zap.Error(err), zap.Int("step", step))
			return w.WriteEvent(Event{Type: EventError, Text: genericErrorText})
		}

		var text strings.Builder
		var calls []openai.ToolCall
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				_ = stream.Close()
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.Error("Model stream failed", zap.Error(err), zap.Int("step", step))
				return w.WriteEvent(Event{Type: EventError, Text: genericErrorText})
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				text.WriteString(delta.Content)
				if err := w.WriteEvent(Event{Type: EventTextDelta, Text: delta.Content}); err != nil {
					_ = stream.Close()
					return err
				}
			}
			if len(delta.ToolCalls) > 0 {
				calls = mergeToolCalls(calls, delta.ToolCalls)
			}
		}
		_ = stream.Close()

		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   text.String(),
			ToolCalls: calls,
		})

		if len(calls) == 0 {
			return w.WriteEvent(Event{Type: EventFinish})
		}

		// Tool results are resolved strictly in order before the next
		// step begins.
		for _, call := range calls {
			tool, registered := a.registry.Get(call.Function.Name)
			if registered && tool.NeedsApproval() {
				if err := w.WriteEvent(Event{
					Type:       EventApprovalRequested,
					ToolCallID: call.ID,
					ToolName:   call.Function.Name,
					Arguments:  rawArguments(call.Function.Arguments),
				}); err != nil {
					return err
				}
				// ToolApprovalPending: the client resubmits with a
				// decision part to continue.
				return nil
			}

			if err := w.WriteEvent(Event{
				Type:       EventToolCall,
				ToolCallID: call.ID,
				ToolName:   call.Function.Name,
				Arguments:  rawArguments(call.Function.Arguments),
			}); err != nil {
				return err
			}

			var payload json.RawMessage
			if !registered {
				payload = errorPayload(fmt.Sprintf("Unknown tool %q.", call.Function.Name))
			} else {
				payload = a.executeTool(ctx, tool, call)
			}

			if err := w.WriteEvent(Event{Type: EventToolResult, ToolCallID: call.ID, Result: payload}); err != nil {
				return err
			}
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    string(payload),
				ToolCallID: call.ID,
			})
		}
	}

	// Step ceiling reached: a completion marker, not an error.
	return w.WriteEvent(Event{Type: EventFinish})
}

func (a *Assistant) executeTool(ctx context.Context, tool tools.Tool, call openai.ToolCall) json.RawMessage {
	payload, err := tool.Execute(ctx, json.RawMessage(call.Function.Arguments))
	if err != nil {
		a.logger.Error("Tool execution failed",
			zap.Error(err),
			zap.String("tool", call.Function.Name),
			zap.String("tool_call_id", call.ID))
		return errorPayload(fmt.Sprintf("Tool %s failed. Please try again.", call.Function.Name))
	}
	return payload
}

// settleApproval resolves the pending tool call named by an approval
// decision part, appending its result to the model context.
func (a *Assistant) settleApproval(ctx context.Context, conv models.Conversation, msgs []openai.ChatCompletionMessage, decision *models.Part, w EventWriter) ([]openai.ChatCompletionMessage, error) {
	call := findPendingCall(conv, decision.ToolCallID)
	if call == nil {
		// Nothing pending under that id; generation proceeds as usual.
		a.logger.Warn("Approval decision without a pending tool call",
			zap.String("tool_call_id", decision.ToolCallID))
		return msgs, nil
	}

	var payload json.RawMessage
	switch {
	case decision.Approved == nil || !*decision.Approved:
		payload = errorPayload("The user rejected this tool call.")
	default:
		tool, registered := a.registry.Get(call.ToolName)
		if !registered {
			payload = errorPayload(fmt.Sprintf("Unknown tool %q.", call.ToolName))
		} else {
			if err := w.WriteEvent(Event{
				Type:       EventToolCall,
				ToolCallID: call.ToolCallID,
				ToolName:   call.ToolName,
				Arguments:  call.Arguments,
			}); err != nil {
				return nil, err
			}
			payload = a.executeTool(ctx, tool, openai.ToolCall{
				ID: call.ToolCallID,
				Function: openai.FunctionCall{
					Name:      call.ToolName,
					Arguments: string(call.Arguments),
				},
			})
		}
	}

	if err := w.WriteEvent(Event{Type: EventToolResult, ToolCallID: call.ToolCallID, Result: payload}); err != nil {
		return nil, err
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    string(payload),
		ToolCallID: call.ToolCallID,
	})
	return msgs, nil
}

// findPendingCall returns the tool-call part with the given id that has
// no tool-result part anywhere in the conversation.
func findPendingCall(conv models.Conversation, id string) *models.Part {
	var call *models.Part
	settled := false
	for i := range conv {
		for j := range conv[i].Parts {
			part := &conv[i].Parts[j]
			switch {
			case part.Type == models.PartToolCall && part.ToolCallID == id:
				call = part
			case part.Type == models.PartToolResult && part.ToolCallID == id:
				settled = true
			}
		}
	}
	if call == nil || settled {
		return nil
	}
	return call
}

// buildModelMessages converts the wire conversation into model-ready
// messages. Approval parts are control metadata and are not shown to the
// model.
func (a *Assistant) buildModelMessages(conv models.Conversation) []openai.ChatCompletionMessage {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}

	for _, m := range conv {
		var text strings.Builder
		var calls []openai.ToolCall
		var results []openai.ChatCompletionMessage

		for _, part := range m.Parts {
			switch part.Type {
			case models.PartText:
				text.WriteString(part.Text)
			case models.PartToolCall:
				calls = append(calls, openai.ToolCall{
					ID:   part.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      part.ToolName,
						Arguments: string(part.Arguments),
					},
				})
			case models.PartToolResult:
				results = append(results, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    string(part.Result),
					ToolCallID: part.ToolCallID,
				})
			}
		}

		switch m.Role {
		case models.RoleAssistant:
			if text.Len() > 0 || len(calls) > 0 {
				msgs = append(msgs, openai.ChatCompletionMessage{
					Role:      openai.ChatMessageRoleAssistant,
					Content:   text.String(),
					ToolCalls: calls,
				})
			}
		case models.RoleTool:
			// results appended below
		default:
			if text.Len() > 0 {
				msgs = append(msgs, openai.ChatCompletionMessage{
					Role:    string(m.Role),
					Content: text.String(),
				})
			}
		}
		msgs = append(msgs, results...)
	}

	return msgs
}

func (a *Assistant) toolDefinitions() []openai.Tool {
	registered := a.registry.List()
	defs := make([]openai.Tool, 0, len(registered))
	for _, t := range registered {
		params := t.Parameters()
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  &params,
			},
		})
	}
	return defs
}

// mergeToolCalls folds streamed tool-call fragments into whole calls,
// keyed by the fragment index.
func mergeToolCalls(existing []openai.ToolCall, fragments []openai.ToolCall) []openai.ToolCall {
	for _, frag := range fragments {
		idx := len(existing)
		if frag.Index != nil {
			idx = *frag.Index
		}
		for idx >= len(existing) {
			existing = append(existing, openai.ToolCall{Type: openai.ToolTypeFunction})
		}
		call := &existing[idx]
		if frag.ID != "" {
			call.ID = frag.ID
		}
		if frag.Type != "" {
			call.Type = frag.Type
		}
		if frag.Function.Name != "" {
			call.Function.Name = frag.Function.Name
		}
		call.Function.Arguments += frag.Function.Arguments
	}
	return existing
}

func errorPayload(message string) json.RawMessage {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return payload
}

// rawArguments keeps valid JSON as-is and quotes anything else so event
// marshaling never fails on model-produced text.
func rawArguments(arguments string) json.RawMessage {
	if json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}
	quoted, _ := json.Marshal(arguments)
	return quoted
}
