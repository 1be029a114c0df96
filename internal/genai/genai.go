// Package genai generates meal plans through the OpenAI chat completion API.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = "You are a professional nutritionist. Compose a one-day meal " +
	"plan (breakfast, lunch, dinner and one snack) that matches the requested " +
	"daily calorie target. Give each dish a short name, an approximate calorie " +
	"count and a two-line recipe. Answer in the user's language."

// fallbackPlan is returned when the model responds with empty content, so the
// user never receives a blank message.
const fallbackPlan = "Breakfast: oatmeal with berries (~400 kcal)\n" +
	"Lunch: grilled chicken with rice and vegetables (~650 kcal)\n" +
	"Dinner: baked fish with potatoes and salad (~550 kcal)\n" +
	"Snack: natural yogurt with a handful of nuts (~300 kcal)"

const defaultMaxTokens = 600

// chatCompleter is the slice of the OpenAI client the generator needs.
type chatCompleter interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client generates meal plans with a chat completion model.
type Client struct {
	chat      chatCompleter
	model     string
	maxTokens int64
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithChatCompleter substitutes the completion backend, used in tests.
func WithChatCompleter(chat chatCompleter) Option {
	return func(c *Client) { c.chat = chat }
}

// NewClient creates a generator authenticated with the given API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is empty")
	}
	api := openai.NewClient(option.WithAPIKey(apiKey))
	c := &Client{
		chat:      &api.Chat.Completions,
		model:     openai.ChatModelGPT4oMini,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateMealPlan produces a one-day meal plan for the calorie target,
// steering the model toward favorite foods and away from disliked ones.
func (c *Client) GenerateMealPlan(ctx context.Context, calories int, favorite, disliked []string) (string, error) {
	prompt := buildPrompt(calories, favorite, disliked)
	slog.Debug("GenAI generating meal plan", "calories", calories, "model", c.model)

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		MaxTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		slog.Warn("GenAI returned empty content, using fallback plan")
		return fallbackPlan, nil
	}
	slog.Debug("GenAI meal plan generated", "length", len(text))
	return text, nil
}

func buildPrompt(calories int, favorite, disliked []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Compose a meal plan for %d kcal per day.", calories)
	if len(favorite) > 0 {
		fmt.Fprintf(&b, " Try to include: %s.", strings.Join(favorite, ", "))
	}
	if len(disliked) > 0 {
		fmt.Fprintf(&b, " Never include: %s.", strings.Join(disliked, ", "))
	}
	return b.String()
}
