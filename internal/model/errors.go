package model

import "errors"

var (
	// ErrDimensionMismatch 向量长度与来源维度不一致（配置/编程错误，不可吞掉）
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrNotFound 向量或电影不存在
	ErrNotFound = errors.New("not found")
	// ErrEncoding 原始输入无法编码
	ErrEncoding = errors.New("encoding error")
	// ErrNotEnoughData 评分样本不足，整个重建中止
	ErrNotEnoughData = errors.New("not enough data")
	// ErrUnsupportedAlgorithm 未知的推荐算法
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	// ErrInvalidQuery 空的搜索文本
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNoResource 原始资源缺失（无海报 / 无简介），入库时跳过而不是失败
	ErrNoResource = errors.New("no resource")
)
