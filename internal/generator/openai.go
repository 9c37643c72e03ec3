package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mimiza/smm/internal/domain"
	"github.com/mimiza/smm/internal/logger"
	"github.com/mimiza/smm/internal/retry"
	"github.com/mimiza/smm/internal/store"
	"github.com/mimiza/smm/internal/text"
)

const (
	// OpenAIEndpoint is the chat completions URL.
	OpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	// OpenAIRequestTimeout is the default timeout for API requests.
	OpenAIRequestTimeout = 60 * time.Second

	defaultOpenAIModel = "gpt-3.5-turbo"

	// contentTitleMaxLen caps generated titles.
	contentTitleMaxLen = 140
)

// OpenAIConfig contains configuration for the OpenAI content generator.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// OpenAI generates content through the chat completions API with a function
// call that returns structured {title, description} output. The mechanism's
// prompts form the conversation; feed items and the predecessor's content
// are appended as a DATA message.
type OpenAI struct {
	client *http.Client
	config OpenAIConfig
	apiURL string
	store  store.Store
	log    *logger.Logger
	retry  retry.Config
}

// NewOpenAI creates an OpenAI generator.
func NewOpenAI(cfg OpenAIConfig, st store.Store, log *logger.Logger) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = OpenAIRequestTimeout
	}
	if log == nil {
		log = logger.Discard()
	}

	return &OpenAI{
		client: &http.Client{Timeout: timeout},
		config: cfg,
		apiURL: OpenAIEndpoint,
		store:  st,
		log:    log,
		retry:  retry.Config{},
	}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIRequest struct {
	Model     string           `json:"model"`
	Messages  []openAIMessage  `json:"messages"`
	Functions []openAIFunction `json:"functions"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			FunctionCall *struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function_call"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type generatedArguments struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// feedItem is one DATA entry handed to the model.
type feedItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Generate builds the prompt from the mechanism, calls the API and persists
// the resulting Content. Returns (nil, nil) when the model produced no
// usable function call.
func (g *OpenAI) Generate(ctx context.Context, req Request) (*domain.Content, error) {
	if g.config.APIKey == "" {
		return nil, errors.New("openai: api key missing")
	}
	if req.Mechanism == nil {
		return nil, errors.New("openai: mechanism missing")
	}

	messages, err := g.assembleMessages(ctx, req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(openAIRequest{
		Model:     g.config.Model,
		Messages:  messages,
		Functions: []openAIFunction{contentFunction(req.Mechanism.Length)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}

	var parsed openAIResponse
	err = retry.Do(ctx, func() error {
		return g.doRequest(ctx, body, &parsed)
	}, g.retry)
	if err != nil {
		return nil, err
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openai: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.FunctionCall == nil {
		g.log.Warn("openai returned no function call",
			logger.Field{Key: "mechanism", Value: req.Mechanism.ID})
		return nil, nil
	}

	var args generatedArguments
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.FunctionCall.Arguments), &args); err != nil {
		return nil, fmt.Errorf("openai: decode function arguments: %w", err)
	}

	title := text.RemoveQuotes(text.RemoveMentions(args.Title))
	description := text.RemoveQuotes(text.RemoveMentions(args.Description))
	// A description shorter than the title means the model crossed the
	// fields; keep the longer text as the body.
	if len(description) < len(title) {
		description = title
	}
	if title == "" && description == "" {
		return nil, nil
	}
	title = text.Shorten(text.Normalize(title), contentTitleMaxLen)
	description = text.Normalize(description)

	content := &domain.Content{
		ID:          store.NewID(),
		Mechanism:   req.Mechanism.ID,
		Title:       title,
		Description: description,
	}
	if err := g.store.CreateContent(ctx, content); err != nil {
		return nil, fmt.Errorf("openai: persist content: %w", err)
	}
	return content, nil
}

// assembleMessages renders mechanism prompts in order and appends one DATA
// message holding linked content, the freshest feeds per provider and the
// individually pinned feeds.
func (g *OpenAI) assembleMessages(ctx context.Context, req Request) ([]openAIMessage, error) {
	var messages []openAIMessage

	for _, promptID := range req.Mechanism.Prompts {
		prompt, err := g.store.GetPrompt(ctx, promptID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("openai: load prompt %s: %w", promptID, err)
		}
		messages = append(messages, openAIMessage{Role: "user", Content: prompt.Description})
	}

	data := make(map[string]feedItem)

	if req.Linked != nil && req.Linked.Description != "" {
		data[req.Linked.ID] = feedItem{Title: req.Linked.Title, Description: req.Linked.Description}
	}

	for _, selection := range req.Mechanism.FeedProviders {
		feeds, err := g.store.ListFeeds(ctx, store.FeedQuery{
			Provider: selection.Provider,
			Order:    store.OrderDesc,
			Limit:    selection.Limit,
		})
		if err != nil {
			return nil, fmt.Errorf("openai: load feeds of %s: %w", selection.Provider, err)
		}
		for _, feed := range feeds {
			data[feed.ID] = feedItem{Title: feed.Title, Description: feed.Description}
		}
	}

	if len(req.Mechanism.Feeds) > 0 {
		pinned := make(map[string]bool, len(req.Mechanism.Feeds))
		for _, feedID := range req.Mechanism.Feeds {
			pinned[feedID] = true
		}
		feeds, err := g.store.ListFeeds(ctx, store.FeedQuery{})
		if err != nil {
			return nil, fmt.Errorf("openai: load pinned feeds: %w", err)
		}
		for _, feed := range feeds {
			if pinned[feed.ID] {
				data[feed.ID] = feedItem{Title: feed.Title, Description: feed.Description}
			}
		}
	}

	if len(data) > 0 {
		encoded, err := json.Marshal(map[string]any{"DATA": data})
		if err != nil {
			return nil, fmt.Errorf("openai: encode data message: %w", err)
		}
		messages = append(messages, openAIMessage{Role: "user", Content: string(encoded)})
	}

	return messages, nil
}

func (g *OpenAI) doRequest(ctx context.Context, body []byte, out *openAIResponse) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.config.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("openai: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai: status %d: %s", resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai: decode response: %w", err)
	}
	return nil
}

// contentFunction is the function schema the model must satisfy.
func contentFunction(length int) openAIFunction {
	description := "Content Description."
	if length > 0 {
		description = fmt.Sprintf("Content Description. Maximum number of characters is %d.", length)
	}
	return openAIFunction{
		Name:        "generate_content",
		Description: "Create a content from given prompts and DATA. Returns `title` and `description`.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{
					"type":        "string",
					"description": "The shortest version of the content.",
				},
				"description": map[string]any{
					"type":        "string",
					"description": description,
				},
			},
			"required": []string{"title", "description"},
		},
	}
}
