// Package llmclient implements the dispatcher.LanguageModel capability
// against an OpenAI-compatible chat-completions HTTP endpoint. This is
// the one boundary spec.md §1 explicitly places outside the system's
// core — the teacher's own LLMClient (pkg/agent/llm_grpc.go) is itself
// a thin adapter to a sibling process, so a minimal net/http adapter
// here is the idiomatic equivalent; see DESIGN.md for the full
// justification (no example repo ships an LLM HTTP SDK).
package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elisa-build/elisa/internal/dispatcher"
)

// Client speaks the OpenAI-compatible streaming chat-completions
// protocol (SSE framed as "data: {json}\n\n", terminated by "data: [DONE]").
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	extraHeaders map[string]string
}

// New creates a Client. baseURL should not include a trailing slash.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// WithProxyHeaders attaches OPENAI_WORKSHOP_CODE/OPENAI_STUDENT_ID as
// request headers, per spec.md §6 "proxy auth headers" — used when
// OPENAI_BASE_URL points at a workshop proxy in front of the real
// vendor endpoint rather than the vendor directly. Either argument may
// be empty, in which case its header is omitted.
func (c *Client) WithProxyHeaders(workshopCode, studentID string) *Client {
	c.extraHeaders = make(map[string]string, 2)
	if workshopCode != "" {
		c.extraHeaders["X-Workshop-Code"] = workshopCode
	}
	if studentID != "" {
		c.extraHeaders["X-Student-Id"] = studentID
	}
	return c
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	Tools               []chatTool    `json:"tools,omitempty"`
	Stream              bool          `json:"stream"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		PromptTokensDetails *struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
		CompletionTokensDetails *struct {
			ReasoningTokens int `json:"reasoning_tokens"`
		} `json:"completion_tokens_details"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate implements dispatcher.LanguageModel.
func (c *Client) Generate(ctx context.Context, in dispatcher.GenerateInput) (<-chan dispatcher.Chunk, error) {
	req := chatRequest{
		Model:               in.Model,
		Messages:            toChatMessages(in.Messages),
		Tools:               toChatTools(in.Tools),
		Stream:              true,
		MaxCompletionTokens: in.MaxCompletionTokens,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	for k, v := range c.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request model endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var errBody struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error.Message == "" {
			errBody.Error.Message = resp.Status
		}
		return nil, fmt.Errorf("%s", errBody.Error.Message)
	}

	out := make(chan dispatcher.Chunk, 16)
	go c.streamResponse(resp, out)
	return out, nil
}

func (c *Client) streamResponse(resp *http.Response, out chan<- dispatcher.Chunk) {
	defer resp.Body.Close()
	defer close(out)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			out <- &dispatcher.ErrorChunk{Message: fmt.Sprintf("malformed stream payload: %v", err)}
			return
		}
		if chunk.Error != nil {
			out <- &dispatcher.ErrorChunk{Message: chunk.Error.Message, Code: chunk.Error.Code}
			return
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				out <- &dispatcher.TextChunk{Content: choice.Delta.Content}
			}
			for _, tc := range choice.Delta.ToolCalls {
				if tc.Function.Name == "" && tc.Function.Arguments == "" {
					continue
				}
				out <- &dispatcher.ToolCallChunk{
					CallID:    tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				}
			}
		}

		if chunk.Usage != nil {
			u := &dispatcher.UsageChunk{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
			if chunk.Usage.PromptTokensDetails != nil {
				u.CachedInputTokens = chunk.Usage.PromptTokensDetails.CachedTokens
			}
			if chunk.Usage.CompletionTokensDetails != nil {
				u.ReasoningTokens = chunk.Usage.CompletionTokensDetails.ReasoningTokens
			}
			out <- u
		}
	}
	if err := scanner.Err(); err != nil {
		out <- &dispatcher.ErrorChunk{Message: err.Error()}
	}
}

func toChatMessages(msgs []dispatcher.Message) []chatMessage {
	out := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		cm := chatMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.ToolName}
		for _, tc := range m.ToolCalls {
			ctc := chatToolCall{ID: tc.ID, Type: "function"}
			ctc.Function.Name = tc.Name
			ctc.Function.Arguments = tc.Arguments
			cm.ToolCalls = append(cm.ToolCalls, ctc)
		}
		out[i] = cm
	}
	return out
}

func toChatTools(defs []dispatcher.ToolDefinition) []chatTool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]chatTool, len(defs))
	for i, d := range defs {
		var ct chatTool
		ct.Type = "function"
		ct.Function.Name = d.Name
		ct.Function.Description = d.Description
		if d.ParametersSchema != "" {
			ct.Function.Parameters = json.RawMessage(d.ParametersSchema)
		}
		out[i] = ct
	}
	return out
}
