package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elisa-build/elisa/internal/sandbox"
)

// ToolExecutor is the minimal surface the dispatcher needs from the
// Tool Sandbox (internal/sandbox.Sandbox already satisfies this).
type ToolExecutor interface {
	Execute(ctx context.Context, call sandbox.Call) sandbox.Result
}

// outputDebounce is the ~100ms coalescing window for streamed text,
// per spec.md §4.7 step 2.
const outputDebounce = 100 * time.Millisecond

// Options configures one dispatch call.
type Options struct {
	MaxTurns            int
	MaxCompletionTokens int
	TimeoutSec          int
	AllowedTools        []string
	EnableStreaming     bool
	EnableToolCalling   bool
	Model               string
}

// AgentResult is the outcome of one dispatch (spec.md §4.7).
type AgentResult struct {
	Success           bool
	Summary           string
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
	ReasoningTokens   int
	ToolCalls         []ToolCallRecord
	CostUsd           float64
}

// ToolCallRecord is one executed tool call, recorded for observability.
type ToolCallRecord struct {
	CallID  string
	Name    string
	Output  string
	IsError bool
}

// OnOutput streams debounced assistant text to the caller (typically
// the event bus), called at most once per debounce window.
type OnOutput func(text string)

// Dispatcher drives the agent turn loop against a LanguageModel.
type Dispatcher struct {
	model LanguageModel
	tools ToolExecutor
}

// New creates a Dispatcher.
func New(model LanguageModel, tools ToolExecutor) *Dispatcher {
	return &Dispatcher{model: model, tools: tools}
}

// Dispatch runs the turn loop for one task, per spec.md §4.7.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	taskID, systemPrompt, userPrompt string,
	opts Options,
	onOutput OnOutput,
) AgentResult {
	if opts.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutSec)*time.Second)
		defer cancel()
	}

	history := []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: userPrompt},
	}

	var result AgentResult
	debouncer := newOutputDebouncer(onOutput)
	defer debouncer.flush()

	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 1
	}

	for turn := 0; turn < maxTurns; turn++ {
		if ctx.Err() != nil {
			result.Summary = "Agent was cancelled"
			result.Success = false
			return result
		}

		chunks, err := d.model.Generate(ctx, GenerateInput{
			TaskID:              taskID,
			Messages:            history,
			Tools:               toolDefinitions(opts),
			Model:               opts.Model,
			MaxCompletionTokens: opts.MaxCompletionTokens,
		})
		if err != nil {
			result.Summary = classifyError(err.Error())
			result.Success = false
			return result
		}

		var assistantText string
		var toolCalls []ToolCall
		var turnErr *ErrorChunk

		for chunk := range chunks {
			switch c := chunk.(type) {
			case *TextChunk:
				assistantText += c.Content
				if opts.EnableStreaming {
					debouncer.emit(c.Content)
				}
			case *ToolCallChunk:
				toolCalls = append(toolCalls, ToolCall{ID: c.CallID, Name: c.Name, Arguments: c.Arguments})
			case *UsageChunk:
				result.InputTokens += c.InputTokens
				result.OutputTokens += c.OutputTokens
				result.CachedInputTokens += c.CachedInputTokens
				result.ReasoningTokens += c.ReasoningTokens
			case *ErrorChunk:
				turnErr = c
			}
		}

		if turnErr != nil {
			result.Summary = classifyError(turnErr.Message)
			result.Success = false
			return result
		}

		if !opts.EnableToolCalling || len(toolCalls) == 0 {
			result.Summary = assistantText
			result.Success = true
			return result
		}

		history = append(history, Message{Role: RoleAssistant, Content: assistantText, ToolCalls: toolCalls})

		toolMsgs, records := d.runToolCalls(ctx, toolCalls)
		result.ToolCalls = append(result.ToolCalls, records...)
		history = append(history, toolMsgs...)
	}

	result.Summary = fmt.Sprintf("Agent exhausted its turn budget (%d turns) without concluding", maxTurns)
	result.Success = false
	return result
}

// runToolCalls executes every tool call from one assistant turn
// concurrently, per spec.md §4.7 step 5.
func (d *Dispatcher) runToolCalls(ctx context.Context, calls []ToolCall) ([]Message, []ToolCallRecord) {
	results := make([]sandbox.Result, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, tc := range calls {
		i, tc := i, tc
		g.Go(func() error {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Arguments), &args)
			results[i] = d.tools.Execute(gctx, sandbox.Call{ID: tc.ID, Name: tc.Name, Arguments: args})
			return nil
		})
	}
	_ = g.Wait() // tool errors are carried in Result.IsError, not goroutine errors

	msgs := make([]Message, len(calls))
	records := make([]ToolCallRecord, len(calls))
	for i, tc := range calls {
		r := results[i]
		msgs[i] = Message{Role: RoleTool, Content: r.Output, ToolCallID: r.CallID, ToolName: tc.Name}
		records[i] = ToolCallRecord{CallID: r.CallID, Name: tc.Name, Output: r.Output, IsError: r.IsError}
	}
	return msgs, records
}

func toolDefinitions(opts Options) []ToolDefinition {
	if !opts.EnableToolCalling {
		return nil
	}
	defs := make([]ToolDefinition, 0, len(opts.AllowedTools))
	for _, name := range opts.AllowedTools {
		defs = append(defs, ToolDefinition{Name: name})
	}
	return defs
}

// outputDebouncer coalesces streamed text chunks into ~100ms windows.
type outputDebouncer struct {
	onOutput OnOutput
	buf      string
	last     time.Time
}

func newOutputDebouncer(onOutput OnOutput) *outputDebouncer {
	return &outputDebouncer{onOutput: onOutput, last: time.Now()}
}

func (o *outputDebouncer) emit(text string) {
	if o.onOutput == nil {
		return
	}
	o.buf += text
	if time.Since(o.last) >= outputDebounce {
		o.flush()
	}
}

func (o *outputDebouncer) flush() {
	if o.onOutput == nil || o.buf == "" {
		return
	}
	o.onOutput(o.buf)
	o.buf = ""
	o.last = time.Now()
}
