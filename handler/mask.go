package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/mask"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/service"
	"github.com/TIANLI0/MaskKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	foregroundPrefix = "fg"
	detectionPrefix  = "seg"
)

type MaskHandler struct {
	cfg      *config.Config
	cache    service.ResultCache
	pipeline *service.Pipeline
}

func NewMaskHandler(cfg *config.Config, cache service.ResultCache, pipeline *service.Pipeline) *MaskHandler {
	return &MaskHandler{
		cfg:      cfg,
		cache:    cache,
		pipeline: pipeline,
	}
}

// BackgroundRemoval 处理单对象前景提取，支持 JSON 与 multipart 两种请求
func (h *MaskHandler) BackgroundRemoval(c *gin.Context) {
	var (
		alpha   *mask.Raster
		opts    = h.pipeline.DefaultExtractOptions()
		payload []byte
		err     error
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		alpha, payload, err = h.readMultipart(c, &opts)
	} else {
		alpha, payload, err = h.readJSON(c, &opts)
	}
	if err != nil {
		utils.Logger.Warn("invalid background removal request", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请求参数错误",
			Error:   err.Error(),
		})
		return
	}

	digest := utils.BytesMD5(payload)
	cacheKey := utils.CacheKey(foregroundPrefix, digest, alpha.Width, alpha.Height,
		opts.EdgeRefinement, opts.Iterations, opts.FeatherRadius, opts.IncludeAlpha, opts.MaxForegroundOnly)
	ctx := c.Request.Context()

	var cached model.ForegroundResult
	if h.lookup(ctx, cacheKey, &cached) {
		c.JSON(http.StatusOK, model.ForegroundResponse{
			Success:          true,
			Message:          "处理成功（来自缓存）",
			ForegroundResult: &cached,
		})
		return
	}

	result, err := h.pipeline.ExtractForeground(ctx, alpha, opts)
	if err != nil {
		utils.Logger.Error("failed to extract foreground", zap.String("md5", digest), zap.Error(err))
		c.JSON(statusFor(err), model.ErrorResponse{
			Success: false,
			Message: "前景提取失败",
			Error:   err.Error(),
		})
		return
	}
	result.Key = cacheKey

	h.store(ctx, cacheKey, result)

	c.JSON(http.StatusOK, model.ForegroundResponse{
		Success:          true,
		Message:          "处理成功",
		ForegroundResult: result,
	})
}

// AutoSegment 处理多对象分割结果，单个掩码失败不影响整体
func (h *MaskHandler) AutoSegment(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "读取请求失败",
			Error:   err.Error(),
		})
		return
	}

	var req model.AutoSegmentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请求参数错误",
			Error:   err.Error(),
		})
		return
	}
	if len(req.Masks) == 0 {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "没有可处理的掩码",
		})
		return
	}

	minArea := h.cfg.Pipeline.MinArea
	if req.MinArea != nil {
		if *req.MinArea < 0 {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{
				Success: false,
				Message: "minArea 不能为负数",
			})
			return
		}
		minArea = *req.MinArea
	}

	objects, skipped, err := h.pipeline.DetectObjects(c.Request.Context(), req.Masks, minArea)
	if err != nil {
		utils.Logger.Error("failed to segment objects", zap.Error(err))
		c.JSON(statusFor(err), model.ErrorResponse{
			Success: false,
			Message: "分割处理失败",
			Error:   err.Error(),
		})
		return
	}

	result := &model.DetectionResult{
		Masks:     objects,
		Count:     len(objects),
		Skipped:   skipped,
		Engine:    service.DetectionEngine,
		Timestamp: time.Now().Unix(),
	}

	// 结果按请求内容缓存，供图层编辑器回查
	result.Key = utils.CacheKey(detectionPrefix, utils.BytesMD5(body), minArea)
	h.store(c.Request.Context(), result.Key, result)

	c.JSON(http.StatusOK, model.DetectionResponse{
		Success:         true,
		Message:         fmt.Sprintf("成功分割 %d 个对象", len(objects)),
		DetectionResult: result,
	})
}

// GetResult 根据缓存键获取处理结果
func (h *MaskHandler) GetResult(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "缓存键参数缺失",
		})
		return
	}

	ctx := c.Request.Context()
	switch {
	case strings.HasPrefix(key, foregroundPrefix+":"):
		var result model.ForegroundResult
		if h.lookup(ctx, key, &result) {
			c.JSON(http.StatusOK, model.ForegroundResponse{Success: true, Message: "查询成功", ForegroundResult: &result})
			return
		}
	case strings.HasPrefix(key, detectionPrefix+":"):
		var result model.DetectionResult
		if h.lookup(ctx, key, &result) {
			c.JSON(http.StatusOK, model.DetectionResponse{Success: true, Message: "查询成功", DetectionResult: &result})
			return
		}
	}

	c.JSON(http.StatusNotFound, model.ErrorResponse{
		Success: false,
		Message: "未找到该结果",
	})
}

func (h *MaskHandler) readJSON(c *gin.Context, opts *service.ExtractOptions) (*mask.Raster, []byte, error) {
	var req model.BackgroundRemovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, nil, err
	}
	if req.EdgeRefinement != nil {
		opts.EdgeRefinement = *req.EdgeRefinement
	}
	if req.Feather != nil {
		opts.FeatherRadius = *req.Feather
	}
	opts.IncludeAlpha = req.IncludeAlpha
	opts.MaxForegroundOnly = req.MaxForegroundOnly

	if len(req.Alpha) > 0 {
		if int64(len(req.Alpha)) > h.cfg.Upload.MaxSize {
			return nil, nil, fmt.Errorf("alpha exceeds %d MB", h.cfg.Upload.MaxSize/(1024*1024))
		}
		alpha, err := mask.FromBuffer(req.Alpha, req.Width, req.Height)
		return alpha, req.Alpha, err
	}
	if req.Image == "" {
		return nil, nil, errors.New("no image provided")
	}

	data, err := service.DecodeBase64Image(req.Image)
	if err != nil {
		return nil, nil, err
	}
	if int64(len(data)) > h.cfg.Upload.MaxSize {
		return nil, nil, fmt.Errorf("image exceeds %d MB", h.cfg.Upload.MaxSize/(1024*1024))
	}
	alpha, err := decodeAlpha(data)
	return alpha, data, err
}

func (h *MaskHandler) readMultipart(c *gin.Context, opts *service.ExtractOptions) (*mask.Raster, []byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, nil, err
	}

	// 验证文件大小
	if file.Size > h.cfg.Upload.MaxSize {
		return nil, nil, fmt.Errorf("image exceeds %d MB", h.cfg.Upload.MaxSize/(1024*1024))
	}

	// 验证文件类型
	if !h.isAllowedType(file.Header.Get("Content-Type")) {
		return nil, nil, fmt.Errorf("unsupported content type %q", file.Header.Get("Content-Type"))
	}

	opts.EdgeRefinement = c.DefaultPostForm("edge_refinement", "true") == "true"
	opts.IncludeAlpha = c.DefaultPostForm("include_alpha", "false") == "true"
	opts.MaxForegroundOnly = c.DefaultPostForm("max_foreground_only", "false") == "true"
	if v := c.PostForm("feather"); v != "" {
		radius, err := strconv.Atoi(v)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid feather: %w", err)
		}
		opts.FeatherRadius = radius
	}

	f, err := file.Open()
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}

	alpha, err := decodeAlpha(data)
	return alpha, data, err
}

func decodeAlpha(data []byte) (*mask.Raster, error) {
	img, err := service.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return service.AlphaRaster(img)
}

func (h *MaskHandler) lookup(ctx context.Context, key string, dst any) bool {
	if h.cache == nil {
		return false
	}
	ok, err := h.cache.Get(ctx, key, dst)
	if err != nil {
		utils.Logger.Warn("failed to get cache", zap.String("cache_key", key), zap.Error(err))
		return false
	}
	if ok {
		utils.Logger.Info("cache hit", zap.String("cache_key", key))
	}
	return ok
}

func (h *MaskHandler) store(ctx context.Context, key string, value any) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, key, value); err != nil {
		utils.Logger.Warn("failed to set cache", zap.String("cache_key", key), zap.Error(err))
	}
}

func (h *MaskHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

// statusFor 把处理错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, mask.ErrInvalidDimensions),
		errors.Is(err, mask.ErrInvalidParameter),
		errors.Is(err, mask.ErrMalformedRLE):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrQueueTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
