package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/campus-chat/internal/models"
	"github.com/xaenox/campus-chat/internal/tools"
	"go.uber.org/zap"
)

// fakeStream replays scripted responses then EOF.
type fakeStream struct {
	responses []openai.ChatCompletionStreamResponse
	idx       int
}

func (s *fakeStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if s.idx >= len(s.responses) {
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	resp := s.responses[s.idx]
	s.idx++
	return resp, nil
}

func (s *fakeStream) Close() error { return nil }

// fakeBackend hands out one scripted stream per step and records every
// request it sees.
type fakeBackend struct {
	streams  []*fakeStream
	requests []openai.ChatCompletionRequest
	err      error
}

func (b *fakeBackend) StreamCompletion(ctx context.Context, req openai.ChatCompletionRequest) (CompletionStream, error) {
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	if len(b.requests) > len(b.streams) {
		return nil, errors.New("no scripted stream left")
	}
	return b.streams[len(b.requests)-1], nil
}

type fakeTool struct {
	name       string
	approval   bool
	executions int
	lastArgs   json.RawMessage
	result     json.RawMessage
	err        error
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "test tool" }
func (t *fakeTool) NeedsApproval() bool { return t.approval }

func (t *fakeTool) Parameters() jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Object}
}

func (t *fakeTool) Execute(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	t.executions++
	t.lastArgs = arguments
	return t.result, t.err
}

type captureWriter struct {
	events []Event
}

func (c *captureWriter) WriteEvent(ev Event) error {
	c.events = append(c.events, ev)
	return nil
}

func (c *captureWriter) types() []EventType {
	kinds := make([]EventType, 0, len(c.events))
	for _, ev := range c.events {
		kinds = append(kinds, ev.Type)
	}
	return kinds
}

func textDelta(text string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{
			{Delta: openai.ChatCompletionStreamChoiceDelta{Content: text}},
		},
	}
}

func toolCallDelta(index int, id, name, arguments string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{
			{Delta: openai.ChatCompletionStreamChoiceDelta{
				ToolCalls: []openai.ToolCall{{
					Index: &index,
					ID:    id,
					Type:  openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      name,
						Arguments: arguments,
					},
				}},
			}},
		},
	}
}

func userConversation(text string) models.Conversation {
	return models.Conversation{
		{Role: models.RoleUser, Parts: []models.Part{{Type: models.PartText, Text: text}}},
	}
}

func TestStreamForwardsTextDeltasInOrder(t *testing.T) {
	backend := &fakeBackend{streams: []*fakeStream{
		{responses: []openai.ChatCompletionStreamResponse{textDelta("Hel"), textDelta("lo"), textDelta("!")}},
	}}
	a := New(backend, tools.NewRegistry(), Config{Model: "test"}, zap.NewNop())
	w := &captureWriter{}

	err := a.Stream(context.Background(), userConversation("hi"), w)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventTextDelta, EventTextDelta, EventTextDelta, EventFinish}, w.types())
	assert.Equal(t, "Hel", w.events[0].Text)
	assert.Equal(t, "lo", w.events[1].Text)
	assert.Equal(t, "!", w.events[2].Text)
}

func TestStreamExecutesToolAndResumes(t *testing.T) {
	tool := &fakeTool{name: "queryDatabase", result: json.RawMessage(`{"count":1}`)}
	backend := &fakeBackend{streams: []*fakeStream{
		// Arguments arrive fragmented across deltas.
		{responses: []openai.ChatCompletionStreamResponse{
			toolCallDelta(0, "call-1", "queryDatabase", `{"table":`),
			toolCallDelta(0, "", "", `"programs"}`),
		}},
		{responses: []openai.ChatCompletionStreamResponse{textDelta("We offer two programs.")}},
	}}
	a := New(backend, tools.NewRegistry(tool), Config{Model: "test"}, zap.NewNop())
	w := &captureWriter{}

	err := a.Stream(context.Background(), userConversation("what programs?"), w)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventToolCall, EventToolResult, EventTextDelta, EventFinish}, w.types())
	assert.Equal(t, 1, tool.executions)
	assert.JSONEq(t, `{"table":"programs"}`, string(tool.lastArgs))
	assert.Equal(t, "call-1", w.events[0].ToolCallID)
	assert.JSONEq(t, `{"count":1}`, string(w.events[1].Result))

	// The second request must carry the tool result for call-1.
	require.Len(t, backend.requests, 2)
	last := backend.requests[1].Messages[len(backend.requests[1].Messages)-1]
	assert.Equal(t, openai.ChatMessageRoleTool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
	assert.JSONEq(t, `{"count":1}`, last.Content)
}

func TestStreamUnknownToolRejected(t *testing.T) {
	backend := &fakeBackend{streams: []*fakeStream{
		{responses: []openai.ChatCompletionStreamResponse{
			toolCallDelta(0, "call-1", "dropTables", `{}`),
		}},
		{responses: []openai.ChatCompletionStreamResponse{textDelta("Sorry.")}},
	}}
	a := New(backend, tools.NewRegistry(), Config{Model: "test"}, zap.NewNop())
	w := &captureWriter{}

	err := a.Stream(context.Background(), userConversation("hack"), w)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventToolCall, EventToolResult, EventTextDelta, EventFinish}, w.types())
	assert.Contains(t, string(w.events[1].Result), "Unknown tool")
}

func TestStreamStepCeilingEndsWithFinish(t *testing.T) {
	tool := &fakeTool{name: "queryDatabase", result: json.RawMessage(`{"count":0,"results":[]}`)}
	loop := func() *fakeStream {
		return &fakeStream{responses: []openai.ChatCompletionStreamResponse{
			toolCallDelta(0, "call-x", "queryDatabase", `{"table":"faqs"}`),
		}}
	}
	backend := &fakeBackend{streams: []*fakeStream{loop(), loop(), loop(), loop(), loop()}}
	a := New(backend, tools.NewRegistry(tool), Config{Model: "test", MaxSteps: 5}, zap.NewNop())
	w := &captureWriter{}

	err := a.Stream(context.Background(), userConversation("loop"), w)
	require.NoError(t, err)

	// Forcibly closed with a completion marker, not an error.
	assert.Equal(t, EventFinish, w.events[len(w.events)-1].Type)
	assert.Len(t, backend.requests, 5)
	assert.Equal(t, 5, tool.executions)
}

func TestStreamBackendFailureEmitsGenericError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	a := New(backend, tools.NewRegistry(), Config{Model: "test"}, zap.NewNop())
	w := &captureWriter{}

	err := a.Stream(context.Background(), userConversation("hi"), w)
	require.NoError(t, err)

	require.Len(t, w.events, 1)
	assert.Equal(t, EventError, w.events[0].Type)
	assert.Equal(t, "Oops, an error occurred!", w.events[0].Text)
}

func TestStreamApprovalPausesGeneration(t *testing.T) {
	tool := &fakeTool{name: "sensitiveTool", approval: true}
	backend := &fakeBackend{streams: []*fakeStream{
		{responses: []openai.ChatCompletionStreamResponse{
			toolCallDelta(0, "call-9", "sensitiveTool", `{"x":1}`),
		}},
	}}
	a := New(backend, tools.NewRegistry(tool), Config{Model: "test"}, zap.NewNop())
	w := &captureWriter{}

	err := a.Stream(context.Background(), userConversation("do it"), w)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventApprovalRequested}, w.types())
	assert.Equal(t, 0, tool.executions)
	assert.Len(t, backend.requests, 1)
}

func approvalConversation(approved bool) models.Conversation {
	decision := approved
	return models.Conversation{
		{Role: models.RoleUser, Parts: []models.Part{{Type: models.PartText, Text: "do it"}}},
		{Role: models.RoleAssistant, Parts: []models.Part{
			{Type: models.PartToolCall, ToolCallID: "call-9", ToolName: "sensitiveTool", Arguments: json.RawMessage(`{"x":1}`)},
			{Type: models.PartToolApproval, ToolCallID: "call-9", Approved: &decision},
		}},
	}
}

func TestStreamApprovedContinuationExecutesOnce(t *testing.T) {
	tool := &fakeTool{name: "sensitiveTool", approval: true, result: json.RawMessage(`{"ok":true}`)}
	backend := &fakeBackend{streams: []*fakeStream{
		{responses: []openai.ChatCompletionStreamResponse{textDelta("Done.")}},
	}}
	a := New(backend, tools.NewRegistry(tool), Config{Model: "test"}, zap.NewNop())
	w := &captureWriter{}

	err := a.Stream(context.Background(), approvalConversation(true), w)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventToolCall, EventToolResult, EventTextDelta, EventFinish}, w.types())
	assert.Equal(t, 1, tool.executions)

	// The resumed generation sees the settled tool result.
	require.Len(t, backend.requests, 1)
	msgs := backend.requests[0].Messages
	last := msgs[len(msgs)-1]
	assert.Equal(t, openai.ChatMessageRoleTool, last.Role)
	assert.Equal(t, "call-9", last.ToolCallID)
}

func TestStreamRejectedContinuationSkipsExecution(t *testing.T) {
	tool := &fakeTool{name: "sensitiveTool", approval: true}
	backend := &fakeBackend{streams: []*fakeStream{
		{responses: []openai.ChatCompletionStreamResponse{textDelta("Understood, I won't run it.")}},
	}}
	a := New(backend, tools.NewRegistry(tool), Config{Model: "test"}, zap.NewNop())
	w := &captureWriter{}

	err := a.Stream(context.Background(), approvalConversation(false), w)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventToolResult, EventTextDelta, EventFinish}, w.types())
	assert.Equal(t, 0, tool.executions)
	assert.Contains(t, string(w.events[0].Result), "rejected")
}

func TestStreamCancelledContextStops(t *testing.T) {
	backend := &fakeBackend{streams: []*fakeStream{
		{responses: []openai.ChatCompletionStreamResponse{textDelta("never sent")}},
	}}
	a := New(backend, tools.NewRegistry(), Config{Model: "test"}, zap.NewNop())
	w := &captureWriter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Stream(ctx, userConversation("hi"), w)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, w.events)
}

func TestToolDefinitionsCarrySchema(t *testing.T) {
	tool := &fakeTool{name: "queryDatabase"}
	a := New(&fakeBackend{}, tools.NewRegistry(tool), Config{Model: "test"}, zap.NewNop())

	defs := a.toolDefinitions()
	require.Len(t, defs, 1)
	assert.Equal(t, openai.ToolTypeFunction, defs[0].Type)
	assert.Equal(t, "queryDatabase", defs[0].Function.Name)
	assert.NotNil(t, defs[0].Function.Parameters)
}
