package encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/user/moovierec/internal/model"
	"github.com/user/moovierec/internal/utils"
)

// CLIPEncoder 调用外部 CLIP 推理服务把海报编码为 512 维向量
type CLIPEncoder struct {
	client   *utils.HTTPClient
	endpoint string
}

// NewCLIPEncoder endpoint 形如 http://localhost:8001
func NewCLIPEncoder(client *utils.HTTPClient, endpoint string) *CLIPEncoder {
	return &CLIPEncoder{
		client:   client,
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

type clipResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Encode 图片字节 -> 归一化的 512 维向量
func (e *CLIPEncoder) Encode(ctx context.Context, img []byte) ([]float32, error) {
	if len(img) == 0 {
		return nil, fmt.Errorf("%w: empty image", model.ErrEncoding)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", model.ErrEncoding, err)
	}

	var resp clipResponse
	err = e.client.Post(ctx, e.endpoint+"/embed/image", nil, "image/"+format, img, &resp)
	if err != nil {
		return nil, fmt.Errorf("clip request failed: %w", err)
	}
	if err := model.CheckDim(model.SourceImage, resp.Embedding); err != nil {
		return nil, err
	}
	return Normalize(resp.Embedding), nil
}
