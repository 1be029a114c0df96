package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type mockCompleter struct {
	resp   *openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockCompleter) New(_ context.Context, params openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.params = params
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func completionWith(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func newTestClient(t *testing.T, mock *mockCompleter) *Client {
	t.Helper()
	c, err := NewClient("test-key", WithChatCompleter(mock))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNewClientDefaultBackend(t *testing.T) {
	c, err := NewClient("test-key")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.chat == nil {
		t.Fatal("default completion backend not wired")
	}
	if c.model != openai.ChatModelGPT4oMini || c.maxTokens != defaultMaxTokens {
		t.Errorf("defaults = %q/%d", c.model, c.maxTokens)
	}
}

func TestGenerateMealPlan(t *testing.T) {
	mock := &mockCompleter{resp: completionWith("Day plan: ...")}
	c := newTestClient(t, mock)

	out, err := c.GenerateMealPlan(context.Background(), 2556,
		[]string{"salmon", "rice"}, []string{"broccoli"})
	if err != nil {
		t.Fatalf("GenerateMealPlan failed: %v", err)
	}
	if out != "Day plan: ..." {
		t.Errorf("plan = %q", out)
	}
	if len(mock.params.Messages) != 2 {
		t.Fatalf("messages = %d, want system + user", len(mock.params.Messages))
	}
}

func TestGenerateMealPlanUpstreamError(t *testing.T) {
	mock := &mockCompleter{err: errors.New("rate limited")}
	c := newTestClient(t, mock)

	if _, err := c.GenerateMealPlan(context.Background(), 2000, nil, nil); err == nil {
		t.Fatal("expected error from failed completion")
	}
}

func TestGenerateMealPlanNoChoices(t *testing.T) {
	mock := &mockCompleter{resp: &openai.ChatCompletion{}}
	c := newTestClient(t, mock)

	if _, err := c.GenerateMealPlan(context.Background(), 2000, nil, nil); err == nil {
		t.Fatal("expected error when no choices are returned")
	}
}

func TestGenerateMealPlanEmptyContentFallsBack(t *testing.T) {
	mock := &mockCompleter{resp: completionWith("  \n")}
	c := newTestClient(t, mock)

	out, err := c.GenerateMealPlan(context.Background(), 2000, nil, nil)
	if err != nil {
		t.Fatalf("GenerateMealPlan failed: %v", err)
	}
	if out != fallbackPlan {
		t.Errorf("expected fallback plan, got %q", out)
	}
}

func TestBuildPrompt(t *testing.T) {
	got := buildPrompt(2556, []string{"salmon"}, []string{"broccoli"})
	for _, want := range []string{"2556", "salmon", "broccoli"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q: %q", want, got)
		}
	}

	bare := buildPrompt(1800, nil, nil)
	if strings.Contains(bare, "include") {
		t.Errorf("prompt should not mention food lists: %q", bare)
	}
}
