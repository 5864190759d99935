package memory

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/jg-phare/memoryd/pkg/llm"
)

// mockLLMClient implements llm.Client for testing. Each call returns the
// next pre-programmed stream; once exhausted, further calls return an
// error, mirroring a provider outage.
type mockLLMClient struct {
	mu        sync.Mutex
	responses []*mockStream
	callIndex int
	model     string
}

func (m *mockLLMClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.Stream, error) {
	m.mu.Lock()
	idx := m.callIndex
	m.callIndex++
	m.mu.Unlock()

	if idx >= len(m.responses) {
		return nil, errExhausted
	}
	return m.responses[idx].toStream(ctx), nil
}

func (m *mockLLMClient) Model() string     { return m.model }
func (m *mockLLMClient) SetModel(s string) { m.model = s }

func (m *mockLLMClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callIndex
}

var errExhausted = errMock("mock llm client: no more programmed responses")

type errMock string

func (e errMock) Error() string { return string(e) }

type mockStream struct {
	chunks []llm.StreamChunk
	err    error
}

func (ms *mockStream) toStream(ctx context.Context) *llm.Stream {
	events := make(chan llm.StreamEvent, len(ms.chunks)+1)
	go func() {
		defer close(events)
		if ms.err != nil {
			events <- llm.StreamEvent{Err: ms.err}
			return
		}
		for _, chunk := range ms.chunks {
			c := chunk
			events <- llm.StreamEvent{Chunk: &c}
		}
	}()
	pr, pw := io.Pipe()
	pw.Close()
	_, cancel := context.WithCancel(ctx)
	return llm.NewStream(events, pr, cancel)
}

// toolUseStream builds a one-shot structured-output response: a single
// tool_use block with the given name and JSON-encoded input.
func toolUseStream(toolName string, input any) *mockStream {
	data, _ := json.Marshal(input)
	toolCalls := "tool_calls"
	return &mockStream{
		chunks: []llm.StreamChunk{
			{
				ID:    "msg-1",
				Model: "test-model",
				Choices: []llm.Choice{{
					Delta: llm.Delta{ToolCalls: []llm.ToolCall{{
						Index: 0,
						ID:    "call_1",
						Type:  "function",
						Function: llm.FunctionCall{
							Name:      toolName,
							Arguments: string(data),
						},
					}}},
				}},
			},
			{
				ID:    "msg-1",
				Model: "test-model",
				Choices: []llm.Choice{{FinishReason: &toolCalls}},
			},
		},
	}
}

// toolUseStreamWithUsage is toolUseStream plus a final chunk carrying
// token usage, so tests can assert on the cost accounting CostTracker
// derives from it.
func toolUseStreamWithUsage(toolName string, input any, promptTokens, completionTokens int) *mockStream {
	ms := toolUseStream(toolName, input)
	ms.chunks[len(ms.chunks)-1].Usage = &llm.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}
	return ms
}

// malformedStream returns a text response with no tool call at all, the
// shape callStructured must reject.
func malformedStream(text string) *mockStream {
	stop := "stop"
	content := text
	return &mockStream{
		chunks: []llm.StreamChunk{
			{
				ID:      "msg-1",
				Model:   "test-model",
				Choices: []llm.Choice{{Delta: llm.Delta{Content: &content}}},
			},
			{
				ID:      "msg-1",
				Model:   "test-model",
				Choices: []llm.Choice{{FinishReason: &stop}},
			},
		},
	}
}

func erroringStream(err error) *mockStream {
	return &mockStream{err: err}
}
