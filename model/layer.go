package model

import "github.com/TIANLI0/MaskKit/mask"

// ForegroundStats 前景统计
type ForegroundStats struct {
	ForegroundPixels int     `json:"foregroundPixels"`
	TotalPixels      int     `json:"totalPixels"`
	ForegroundRatio  float64 `json:"foregroundRatio"` // 保留两位小数
}

// ForegroundResult 单对象前景提取结果
type ForegroundResult struct {
	Key       string          `json:"key,omitempty"` // 缓存键，可用于回查
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	Mask      mask.RLE        `json:"mask"`
	Bounds    *mask.Bounds    `json:"bounds"` // 没有前景时为 null
	Stats     ForegroundStats `json:"stats"`
	AlphaMask []byte          `json:"alphaMask,omitempty"` // 精修后的 alpha，base64
	Engine    string          `json:"engine"`
	Timestamp int64           `json:"timestamp"`
}

// DetectionResult 多对象分割结果，Masks 按面积降序
type DetectionResult struct {
	Key       string                 `json:"key,omitempty"`
	Masks     []mask.SegmentedObject `json:"masks"`
	Count     int                    `json:"count"`
	Skipped   int                    `json:"skipped"`
	Engine    string                 `json:"engine"`
	Timestamp int64                  `json:"timestamp"`
}

// MaskSource 单个待处理掩码，RLE、Data、Image、URL 四选一
type MaskSource struct {
	RLE        *mask.RLE `json:"rle,omitempty"`
	Box        []int     `json:"box,omitempty"` // [minX, minY, maxX, maxY]
	Area       int       `json:"area,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Label      string    `json:"label,omitempty"`

	Data   []byte `json:"data,omitempty"` // 单通道原始像素，base64
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`

	Image string `json:"image,omitempty"` // base64 或 data URL 编码的图片
	URL   string `json:"url,omitempty"`
}

// BackgroundRemovalRequest 前景提取请求
type BackgroundRemovalRequest struct {
	Image             string `json:"image"`
	Alpha             []byte `json:"alpha"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	EdgeRefinement    *bool  `json:"edgeRefinement"`
	Feather           *int   `json:"feather"`
	IncludeAlpha      bool   `json:"includeAlpha"`
	MaxForegroundOnly bool   `json:"maxForegroundOnly"`
}

// AutoSegmentRequest 多对象分割请求
type AutoSegmentRequest struct {
	Masks   []MaskSource `json:"masks"`
	MinArea *int         `json:"minArea"`
}

// ForegroundResponse 前景提取响应
type ForegroundResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*ForegroundResult
}

// DetectionResponse 多对象分割响应
type DetectionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*DetectionResult
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
