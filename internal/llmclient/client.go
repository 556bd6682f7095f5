// Package llmclient is a minimal streaming client for an
// OpenAI-compatible chat completions endpoint. It knows how to read
// an SSE response and decode both plain content deltas and
// tool-call-argument deltas; assembling tool-call fragments into a
// completed command suggestion is the caller's job.
package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a function the model may call, in OpenAI's
// function-calling schema.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the body of a Tool.
type ToolFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

// ToolCallFragment is one incremental piece of a tool call as it
// streams in. Index identifies which parallel tool call (if more than
// one) the fragment belongs to; Name and ArgumentsDelta are only
// non-empty on the fragments that carry them.
type ToolCallFragment struct {
	Index          int
	ID             string
	Name           string
	ArgumentsDelta string
}

// Delta is one unit pulled off the stream: zero or more of its fields
// are populated depending on what the upstream chunk carried.
type Delta struct {
	ContentText  string
	ToolCall     *ToolCallFragment
	FinishReason string
	Err          error
}

// Client talks to a single OpenAI-compatible endpoint, resolved from
// explicit fields or the OPENAI_API_KEY / OPENAI_API_BASE
// environment variables.
type Client struct {
	APIKey  string
	APIBase string
	Model   string
	HTTP    *http.Client
}

const defaultAPIBase = "https://api.openai.com/v1"

// New builds a Client, reading OPENAI_API_KEY and OPENAI_API_BASE from
// the environment if apiKey/apiBase are empty.
func New(apiKey, apiBase, model string) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiBase == "" {
		apiBase = os.Getenv("OPENAI_API_BASE")
	}
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	apiBase = strings.TrimSuffix(apiBase, "/")

	return &Client{
		APIKey:  apiKey,
		APIBase: apiBase,
		Model:   model,
		HTTP:    &http.Client{},
	}
}

func urlJoin(base, rel string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	relURL, err := url.Parse(rel)
	if err != nil {
		return "", err
	}
	if relURL.Scheme != "" && relURL.Host != "" {
		return rel, nil
	}
	joined := &url.URL{
		Scheme: baseURL.Scheme,
		User:   baseURL.User,
		Host:   baseURL.Host,
		Path:   path.Join(baseURL.Path, relURL.Path),
	}
	return joined.String(), nil
}

type chatRequest struct {
	Model    string    `json:"model"`
	Stream   bool      `json:"stream"`
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
}

type streamChunk struct {
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
}

// Stream submits messages (optionally with tools) to the chat
// completions endpoint and returns a channel of Deltas. The channel is
// closed when the stream ends, errors, or ctx is canceled; at most one
// Delta carrying a non-nil Err is ever sent, as the final value.
func (c *Client) Stream(ctx context.Context, messages []Message, tools []Tool) (<-chan Delta, error) {
	reqBody := chatRequest{
		Model:    c.Model,
		Stream:   true,
		Messages: messages,
		Tools:    tools,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	chatURL, err := urlJoin(c.APIBase, "/chat/completions")
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", chatURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("llm api error (status %d): %s", resp.StatusCode, string(body))
	}

	ch := make(chan Delta)
	go c.pump(ctx, resp.Body, ch)
	return ch, nil
}

func (c *Client) pump(ctx context.Context, body io.ReadCloser, ch chan<- Delta) {
	defer close(ch)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	send := func(d Delta) bool {
		select {
		case ch <- d:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimSpace(line[len("data: "):])
		if payload == "[DONE]" {
			return
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			send(Delta{Err: fmt.Errorf("decode stream chunk: %w", err)})
			return
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			if !send(Delta{ContentText: choice.Delta.Content}) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			if !send(Delta{ToolCall: &ToolCallFragment{
				Index:          tc.Index,
				ID:             tc.ID,
				Name:           tc.Function.Name,
				ArgumentsDelta: tc.Function.Arguments,
			}}) {
				return
			}
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			if !send(Delta{FinishReason: *choice.FinishReason}) {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		send(Delta{Err: err})
	}
}
