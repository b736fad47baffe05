package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/kanadeck/pkg/models"
	"go.uber.org/zap"
)

// MaxHistory bounds the number of earlier messages sent along with a question
const MaxHistory = 10

// ErrNotConfigured is returned when no API key is set
var ErrNotConfigured = errors.New("ai: tutor is not configured")

const tutorPrompt = "You are a friendly Japanese tutor who teaches hiragana, katakana, kanji and basic grammar. " +
	"Answer in English, keep it short and use Markdown sparingly."

// Config holds the chat completions endpoint settings
type Config struct {
	APIKey     string
	APIURL     string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
}

// Tutor is a client for an OpenAI compatible chat completions API
type Tutor struct {
	apiKey    string
	apiURL    string
	model     string
	maxTokens int
	client    *http.Client
	logger    *zap.Logger
}

// New creates a new tutor client
func New(cfg Config, logger *zap.Logger) (*Tutor, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.openai.com/v1/chat/completions"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Tutor{
		apiKey:    cfg.APIKey,
		apiURL:    cfg.APIURL,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		client:    cfg.HTTPClient,
		logger:    logger,
	}, nil
}

// Message represents a message in a tutoring conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a request to the chat completions API
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

// ChatResponse represents a response from the chat completions API
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Explain returns a short mnemonic for a kana
func (t *Tutor) Explain(ctx context.Context, item models.Item) (string, error) {
	prompt := fmt.Sprintf(
		"Give a short mnemonic (two sentences at most) for remembering the kana '%s', read '%s'. "+
			"Mention one common word that uses it.",
		item.Symbol, item.Transliteration,
	)

	return t.complete(ctx, []Message{
		{Role: "system", Content: tutorPrompt},
		{Role: "user", Content: prompt},
	}, 0.5)
}

// ExplainWithFallback explains a kana, falling back to a canned hint on error
func (t *Tutor) ExplainWithFallback(ctx context.Context, item models.Item) string {
	if t != nil {
		explanation, err := t.Explain(ctx, item)
		if err == nil && explanation != "" {
			return explanation
		}
		t.logger.Warn("Failed to explain kana", zap.String("symbol", item.Symbol), zap.Error(err))
	}
	return Fallback(item)
}

// Fallback is the hint shown when the tutor is unavailable
func Fallback(item models.Item) string {
	if item.Category == "" {
		return fmt.Sprintf("%s is read \"%s\".", item.Symbol, item.Transliteration)
	}
	return fmt.Sprintf("%s is read \"%s\" (%s).", item.Symbol, item.Transliteration, item.Category)
}

// Chat continues a tutoring conversation. Only the last MaxHistory messages
// of history are sent along with the question.
func (t *Tutor) Chat(ctx context.Context, history []Message, question string) (string, error) {
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: tutorPrompt})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: question})
	return t.complete(ctx, messages, 0.7)
}

// SuggestQuestions proposes three short questions a learner could ask about a topic
func (t *Tutor) SuggestQuestions(ctx context.Context, topic string) ([]string, error) {
	answer, err := t.complete(ctx, []Message{
		{Role: "system", Content: "You suggest questions for people learning Japanese. Reply with exactly three short questions, one per line."},
		{Role: "user", Content: fmt.Sprintf("Suggest three short questions about %s.", topic)},
	}, 0.8)
	if err != nil {
		return nil, err
	}

	var questions []string
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789.) "))
		if line != "" {
			questions = append(questions, line)
		}
	}
	if len(questions) > 3 {
		questions = questions[:3]
	}
	return questions, nil
}

func (t *Tutor) complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	if t == nil {
		return "", ErrNotConfigured
	}
	return t.completeTokens(ctx, messages, temperature, t.maxTokens)
}

func (t *Tutor) completeTokens(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error) {
	if t == nil {
		return "", ErrNotConfigured
	}

	request := ChatRequest{
		Model:       t.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	requestData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL, bytes.NewReader(requestData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API error: status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if response.Error != nil {
		return "", fmt.Errorf("API error: %s", response.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}
