// Package executor bridges A2A message/send requests to the agent runner.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"
	"trpc.group/trpc-go/trpc-a2a-go/taskmanager"

	"github.com/agentic-layer/sdk-go/internal/telemetry"
	"github.com/agentic-layer/sdk-go/pkg/agent"
)

// Metadata values marking function call and function response data parts.
const (
	MetadataTypeKey          = "adk_type"
	MetadataFunctionCall     = "function_call"
	MetadataFunctionResponse = "function_response"
)

// ErrEmptyMessage is reported when a message carries no text.
var ErrEmptyMessage = errors.New("message has no text parts")

// Executor runs one agent turn per A2A message and answers with a finished task.
type Executor struct {
	runner *agent.Runner
	logger *slog.Logger
}

type Option func(*Executor)

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New creates an Executor for r.
func New(r *agent.Runner, opts ...Option) *Executor {
	e := &Executor{runner: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessMessage implements taskmanager.MessageProcessor. Agent failures are
// reported in the task status rather than as JSON-RPC errors.
func (e *Executor) ProcessMessage(
	ctx context.Context,
	message protocol.Message,
	_ taskmanager.ProcessOptions,
	_ taskmanager.TaskHandler,
) (*taskmanager.MessageProcessingResult, error) {
	task := e.Execute(ctx, message)
	return &taskmanager.MessageProcessingResult{Result: task}, nil
}

// Execute runs message through the runner and returns the resulting task.
func (e *Executor) Execute(ctx context.Context, message protocol.Message) *protocol.Task {
	contextID := uuid.NewString()
	if message.ContextID != nil && *message.ContextID != "" {
		contextID = *message.ContextID
	}
	taskID := uuid.NewString()
	if message.TaskID != nil && *message.TaskID != "" {
		taskID = *message.TaskID
	}
	message.ContextID = &contextID
	message.TaskID = &taskID

	ctx, span := telemetry.StartSpan(ctx, "a2a.message")
	start := time.Now()

	task := &protocol.Task{
		Kind:      "task",
		ID:        taskID,
		ContextID: contextID,
		History:   []protocol.Message{message},
	}

	text := TextOf(message.Parts)
	if text == "" {
		e.fail(task, ErrEmptyMessage)
		telemetry.EndSpan(span, ErrEmptyMessage)
		return task
	}

	events, err := e.runner.Run(ctx, userID(contextID), contextID, agent.NewTextContent(agent.RoleUser, text))
	for _, ev := range events {
		task.History = append(task.History, ToMessages(ev, contextID, taskID)...)
	}
	telemetry.EndSpan(span, err)
	if err != nil {
		e.logger.WarnContext(ctx, "A2A task failed", "task_id", taskID, "context_id", contextID, "error", err)
		e.fail(task, err)
		return task
	}

	final := finalMessage(task.History)
	task.Status = protocol.TaskStatus{
		State:     protocol.TaskStateCompleted,
		Message:   final,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	e.logger.DebugContext(ctx, "A2A task completed",
		"task_id", taskID, "context_id", contextID, "records", len(task.History), "duration", time.Since(start))
	return task
}

func (e *Executor) fail(task *protocol.Task, err error) {
	msg := agentMessage(task.ContextID, task.ID, []protocol.Part{&protocol.TextPart{Kind: "text", Text: err.Error()}})
	task.Status = protocol.TaskStatus{
		State:     protocol.TaskStateFailed,
		Message:   &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// userID gives each A2A conversation its own session owner.
func userID(contextID string) string {
	return "A2A_USER_" + contextID
}

// TextOf joins the text parts of a message.
func TextOf(parts []protocol.Part) string {
	var texts []string
	for _, p := range parts {
		if tp, ok := p.(*protocol.TextPart); ok && tp.Text != "" {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ToMessages converts one runner event into A2A history messages. User text keeps
// the user role; everything the agent produced uses the agent role.
func ToMessages(ev agent.Event, contextID, taskID string) []protocol.Message {
	var out []protocol.Message
	for _, p := range ev.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			out = append(out, agentMessage(contextID, taskID, []protocol.Part{&protocol.DataPart{
				Kind: "data",
				Data: map[string]any{
					"id":   p.FunctionCall.ID,
					"name": p.FunctionCall.Name,
					"args": p.FunctionCall.Args,
				},
				Metadata: map[string]any{MetadataTypeKey: MetadataFunctionCall},
			}}))
		case p.FunctionResponse != nil:
			out = append(out, agentMessage(contextID, taskID, []protocol.Part{&protocol.DataPart{
				Kind: "data",
				Data: map[string]any{
					"id":       p.FunctionResponse.ID,
					"name":     p.FunctionResponse.Name,
					"response": p.FunctionResponse.Response,
				},
				Metadata: map[string]any{MetadataTypeKey: MetadataFunctionResponse},
			}}))
		case p.Text != "":
			part := &protocol.TextPart{Kind: "text", Text: p.Text}
			if ev.Content.Role == agent.RoleUser {
				out = append(out, userMessage(contextID, taskID, []protocol.Part{part}))
			} else {
				out = append(out, agentMessage(contextID, taskID, []protocol.Part{part}))
			}
		}
	}
	return out
}

func agentMessage(contextID, taskID string, parts []protocol.Part) protocol.Message {
	return newMessage(protocol.MessageRoleAgent, contextID, taskID, parts)
}

func userMessage(contextID, taskID string, parts []protocol.Part) protocol.Message {
	return newMessage(protocol.MessageRoleUser, contextID, taskID, parts)
}

func newMessage(role protocol.MessageRole, contextID, taskID string, parts []protocol.Part) protocol.Message {
	return protocol.Message{
		Kind:      "message",
		MessageID: uuid.NewString(),
		Role:      role,
		Parts:     parts,
		ContextID: &contextID,
		TaskID:    &taskID,
	}
}

// finalMessage returns the last agent text message in history.
func finalMessage(history []protocol.Message) *protocol.Message {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role != protocol.MessageRoleAgent {
			continue
		}
		if TextOf(m.Parts) != "" {
			return &m
		}
	}
	return nil
}
