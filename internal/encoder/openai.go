package encoder

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/moovierec/internal/model"
	"github.com/user/moovierec/internal/utils"
)

// OpenAIEncoder 通过 OpenAI embeddings 接口把剧情描述编码为 1536 维向量
type OpenAIEncoder struct {
	client  *utils.HTTPClient
	baseURL string
	apiKey  string
	model   string
}

func NewOpenAIEncoder(client *utils.HTTPClient, baseURL, apiKey, embeddingModel string) *OpenAIEncoder {
	return &OpenAIEncoder{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   embeddingModel,
	}
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Encode 文本 -> 归一化的 1536 维向量
func (e *OpenAIEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", model.ErrEncoding)
	}

	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}
	var resp embeddingResponse
	err := e.client.PostJSON(ctx, e.baseURL+"/embeddings", headers, embeddingRequest{
		Model: e.model,
		Input: text,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: openai returned no embedding", model.ErrEncoding)
	}

	vec := resp.Data[0].Embedding
	if err := model.CheckDim(model.SourceText, vec); err != nil {
		return nil, err
	}
	return Normalize(vec), nil
}
