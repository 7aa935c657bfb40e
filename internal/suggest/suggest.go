// Package suggest 大模型自由文本推荐：给定一部电影标题，返回相似电影的标题列表
package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/user/moovierec/internal/utils"
)

// Suggester 自由文本推荐源，返回的标题不保证能在片库中找到
type Suggester interface {
	Suggest(ctx context.Context, seedTitle string) ([]string, error)
}

const systemPrompt = `You are a movie recommender expert.
Your goal is to recommend movies you think the user will like if they liked the movie you were provided.
Return a list of at least 10 movies that are similar to the one that the user told you.`

func userPrompt(seedTitle string) string {
	return fmt.Sprintf("I like %s. Can you recommend something similar?", seedTitle)
}

// titlesSchema 结构化输出的 JSON Schema
var titlesSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"recommended_titles": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required":             []string{"recommended_titles"},
	"additionalProperties": false,
}

type titlesPayload struct {
	RecommendedTitles []string `json:"recommended_titles"`
}

// parseTitles 解析模型返回的 JSON，保持原顺序，去掉空白项
func parseTitles(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var payload titlesPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return nil, fmt.Errorf("decode suggestion payload: %w", err)
	}

	titles := make([]string, 0, len(payload.RecommendedTitles))
	for _, t := range payload.RecommendedTitles {
		if t = strings.TrimSpace(t); t != "" {
			titles = append(titles, t)
		}
	}
	return titles, nil
}

// Provider 可选的大模型提供方
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Options 构造推荐源所需配置
type Options struct {
	Provider      string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string
	GeminiBaseURL string
	GeminiAPIKey  string
	GeminiModel   string
}

// New 按提供方创建推荐源
func New(client *utils.HTTPClient, opts Options) (Suggester, error) {
	switch opts.Provider {
	case ProviderOpenAI, "":
		return NewOpenAISuggester(client, opts.OpenAIBaseURL, opts.OpenAIAPIKey, opts.OpenAIModel), nil
	case ProviderGemini:
		return NewGeminiSuggester(client, opts.GeminiBaseURL, opts.GeminiAPIKey, opts.GeminiModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
}
