package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/user/moovierec/internal/utils"
)

// OpenAISuggester OpenAI chat completions + 结构化输出
type OpenAISuggester struct {
	client  *utils.HTTPClient
	baseURL string
	apiKey  string
	model   string
}

func NewOpenAISuggester(client *utils.HTTPClient, baseURL, apiKey, model string) *OpenAISuggester {
	return &OpenAISuggester{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

func (s *OpenAISuggester) Suggest(ctx context.Context, seedTitle string) ([]string, error) {
	if s.apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}

	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(seedTitle)},
		},
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "recommendations_list",
				"strict": true,
				"schema": titlesSchema,
			},
		},
	}

	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + s.apiKey}
	if err := s.client.PostJSON(ctx, s.baseURL+"/chat/completions", headers, req, &resp); err != nil {
		return nil, fmt.Errorf("openai chat request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return nil, fmt.Errorf("openai refused: %s", msg.Refusal)
	}
	return parseTitles(msg.Content)
}
