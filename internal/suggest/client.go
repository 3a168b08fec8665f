package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-1.5-flash"

	minTags     = 3
	maxTags     = 5
	temperature = 0.3
	maxTokens   = 256
)

// ErrSuggestion wraps every failure to obtain a usable tag list.
var ErrSuggestion = errors.New("suggest: tag suggestion failed")

var errMissingAPIKey = errors.New("suggest: api key is required")

var genericTags = map[string]struct{}{
	"app":     {},
	"tool":    {},
	"project": {},
}

var (
	separatorPattern = regexp.MustCompile(`[\s_]+`)
	disallowed       = regexp.MustCompile(`[^a-z0-9+#.\-]`)
	repeatedHyphens  = regexp.MustCompile(`-{2,}`)
)

const systemPrompt = `You label GitHub repositories with short tags.
Suggest 3-5 relevant, concise, single-word or two-word (kebab-case) tags.
Tags must be lowercase and specific to the project's purpose, technology and domain.
Do not suggest generic tags like 'app', 'tool', or 'project'.
Prefer specific technologies (e.g. 'react', 'fastapi', 'docker'), concepts (e.g. 'data-visualization', 'machine-learning') or domains (e.g. 'home-automation', 'game-development').
Answer with a JSON object whose only key "tags" is an array of strings.`

// RepositoryMetadata is the input the model sees.
type RepositoryMetadata struct {
	Name        string
	FullName    string
	Description *string
	Language    *string
}

type tagResponse struct {
	Tags []string `json:"tags" jsonschema:"required,description=3 to 5 lowercase kebab-case tags"`
}

// Config describes the OpenAI-compatible endpoint.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client asks a chat-completion model for tag suggestions.
type Client struct {
	openai  openai.Client
	model   string
	timeout time.Duration
	schema  any
	logger  *zap.Logger
}

// NewClient validates the configuration.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{
		openai:  openai.NewClient(opts...),
		model:   model,
		timeout: timeout,
		schema:  generateSchema[tagResponse](),
		logger:  logger,
	}, nil
}

// SuggestTags returns 3 to 5 normalized tags for metadata. It never returns a partial list:
// any transport, decoding or validation failure is reported as ErrSuggestion.
func (c *Client) SuggestTags(ctx context.Context, metadata RepositoryMetadata) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt(metadata)),
		},
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "repository_tags",
					Description: openai.String("Tags describing a GitHub repository"),
					Schema:      c.schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	start := time.Now()
	resp, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.fail(metadata, "upstream", err)
	}
	c.logger.Debug("tag suggestion completed",
		zap.String("model", c.model),
		zap.String("full_name", metadata.FullName),
		zap.Duration("duration", time.Since(start)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	if len(resp.Choices) == 0 {
		return nil, c.fail(metadata, "empty_response", errors.New("no choices in response"))
	}

	var decoded tagResponse
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Choices[0].Message.Content)), &decoded); err != nil {
		return nil, c.fail(metadata, "malformed_response", err)
	}
	tags := NormalizeTags(decoded.Tags)
	if len(tags) < minTags {
		return nil, c.fail(metadata, "too_few_tags", fmt.Errorf("got %d usable tags from %v", len(tags), decoded.Tags))
	}
	return tags, nil
}

func (c *Client) fail(metadata RepositoryMetadata, reason string, err error) error {
	c.logger.Warn("tag suggestion failed",
		zap.String("reason", reason),
		zap.String("full_name", metadata.FullName),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %v", ErrSuggestion, reason, err)
}

// NormalizeTags lowercases names, hyphenates whitespace and underscores, strips other punctuation,
// drops generic and duplicate entries and keeps at most five.
func NormalizeTags(raw []string) []string {
	tags := make([]string, 0, maxTags)
	seen := make(map[string]struct{}, len(raw))
	for _, candidate := range raw {
		tag := strings.ToLower(strings.TrimSpace(candidate))
		tag = separatorPattern.ReplaceAllString(tag, "-")
		tag = disallowed.ReplaceAllString(tag, "")
		tag = repeatedHyphens.ReplaceAllString(tag, "-")
		tag = strings.Trim(tag, "-.")
		if tag == "" {
			continue
		}
		if _, generic := genericTags[tag]; generic {
			continue
		}
		if _, duplicate := seen[tag]; duplicate {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

func userPrompt(metadata RepositoryMetadata) string {
	description := "No description provided."
	if metadata.Description != nil && strings.TrimSpace(*metadata.Description) != "" {
		description = *metadata.Description
	}
	language := "Not specified."
	if metadata.Language != nil && strings.TrimSpace(*metadata.Language) != "" {
		language = *metadata.Language
	}
	return fmt.Sprintf("Repository Name: %s\nFull Name: %s\nDescription: %s\nLanguage: %s",
		metadata.Name, metadata.FullName, description, language)
}

// Some OpenAI-compatible backends wrap JSON output in a markdown fence even in JSON mode.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func generateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
