package suggest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/user/moovierec/internal/utils"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiRequest Gemini API 请求结构
type GeminiRequest struct {
	SystemInstruction *GeminiContent        `json:"systemInstruction,omitempty"`
	Contents          []GeminiContent       `json:"contents"`
	GenerationConfig  *GeminiGenerateConfig `json:"generationConfig,omitempty"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text string `json:"text"`
}

type GeminiGenerateConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

// GeminiResponse Gemini API 响应结构
type GeminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GeminiSuggester Gemini generateContent + JSON 输出
type GeminiSuggester struct {
	client  *utils.HTTPClient
	baseURL string
	apiKey  string
	model   string
}

// NewGeminiSuggester baseURL 为空时使用官方地址
func NewGeminiSuggester(client *utils.HTTPClient, baseURL, apiKey, model string) *GeminiSuggester {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiSuggester{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

func (s *GeminiSuggester) Suggest(ctx context.Context, seedTitle string) ([]string, error) {
	if s.apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", s.baseURL, url.PathEscape(s.model))
	reqBody := GeminiRequest{
		SystemInstruction: &GeminiContent{Parts: []GeminiPart{{Text: systemPrompt}}},
		Contents: []GeminiContent{
			{Role: "user", Parts: []GeminiPart{{Text: userPrompt(seedTitle)}}},
		},
		GenerationConfig: &GeminiGenerateConfig{
			ResponseMimeType: "application/json",
			ResponseSchema: map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"recommended_titles": map[string]any{
						"type":  "ARRAY",
						"items": map[string]any{"type": "STRING"},
					},
				},
				"required": []string{"recommended_titles"},
			},
		},
	}

	var result GeminiResponse
	headers := map[string]string{"x-goog-api-key": s.apiKey}
	if err := s.client.PostJSON(ctx, endpoint, headers, reqBody, &result); err != nil {
		return nil, fmt.Errorf("post request to gemini failed: %w", err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("gemini api error: %s", result.Error.Message)
	}
	if len(result.Candidates) > 0 && len(result.Candidates[0].Content.Parts) > 0 {
		return parseTitles(result.Candidates[0].Content.Parts[0].Text)
	}
	return nil, errors.New("gemini returned no content")
}
