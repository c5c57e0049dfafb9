package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/mask"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	ForegroundEngine = "MaskKit foreground"
	DetectionEngine  = "MaskKit segmentation"
)

// ExtractOptions 单对象前景提取参数
type ExtractOptions struct {
	EdgeRefinement    bool
	Iterations        int
	FeatherRadius     int
	IncludeAlpha      bool
	MaxForegroundOnly bool
}

// Pipeline 负责把分割模型输出的掩码整理成图层可用的对象
type Pipeline struct {
	cfg           config.PipelineConfig
	fetcher       Fetcher
	semaphore     chan struct{}
	workers       int
	queueTimeout  time.Duration
	maskProcessor *MaskProcessor
}

func NewPipeline(cfg *config.PipelineConfig, fetcher Fetcher) *Pipeline {
	concurrent := cfg.MaxConcurrent
	if concurrent <= 0 {
		concurrent = 1
	}
	return &Pipeline{
		cfg:           *cfg,
		fetcher:       fetcher,
		semaphore:     make(chan struct{}, concurrent),
		workers:       concurrent,
		queueTimeout:  time.Duration(cfg.QueueTimeout) * time.Second,
		maskProcessor: NewMaskProcessor(),
	}
}

// DefaultExtractOptions 返回配置中的默认提取参数
func (p *Pipeline) DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		EdgeRefinement: true,
		Iterations:     p.cfg.RefineIterations,
		FeatherRadius:  p.cfg.FeatherRadius,
	}
}

// acquire 获取一个处理槽位，返回的函数用于释放
func (p *Pipeline) acquire(ctx context.Context) (func(), error) {
	if p.queueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.queueTimeout)
		defer cancel()
	}

	select {
	case p.semaphore <- struct{}{}:
		return func() { <-p.semaphore }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrQueueTimeout, ctx.Err())
	}
}

func (p *Pipeline) validateOptions(opts ExtractOptions) error {
	if opts.Iterations < 0 || (p.cfg.MaxIterations > 0 && opts.Iterations > p.cfg.MaxIterations) {
		return fmt.Errorf("%w: iterations must be between 0 and %d", mask.ErrInvalidParameter, p.cfg.MaxIterations)
	}
	if opts.FeatherRadius < 0 || (p.cfg.MaxFeatherRadius > 0 && opts.FeatherRadius > p.cfg.MaxFeatherRadius) {
		return fmt.Errorf("%w: feather radius must be between 0 and %d", mask.ErrInvalidParameter, p.cfg.MaxFeatherRadius)
	}
	return nil
}

// ExtractForeground 对单个 alpha 掩码做开运算、羽化、统计与编码
func (p *Pipeline) ExtractForeground(ctx context.Context, alpha *mask.Raster, opts ExtractOptions) (*model.ForegroundResult, error) {
	if err := p.validateOptions(opts); err != nil {
		return nil, err
	}
	if err := alpha.Validate(); err != nil {
		return nil, err
	}

	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	startTime := time.Now()
	current := alpha

	if opts.EdgeRefinement && opts.Iterations > 0 {
		current, err = mask.Refine(current, opts.Iterations)
		if err != nil {
			return nil, fmt.Errorf("refine edges: %w", err)
		}
	}

	if opts.FeatherRadius > 0 {
		current, err = mask.Feather(current, opts.FeatherRadius)
		if err != nil {
			return nil, fmt.Errorf("feather edges: %w", err)
		}
	}

	binary := current.Binarize(p.cfg.Threshold)
	if opts.MaxForegroundOnly {
		binary, err = p.maskProcessor.KeepLargest(binary)
		if err != nil {
			return nil, fmt.Errorf("keep largest component: %w", err)
		}
	}

	measured, err := mask.Measure(binary, mask.ForegroundThreshold)
	if err != nil {
		return nil, fmt.Errorf("measure mask: %w", err)
	}

	rle, err := mask.Encode(binary)
	if err != nil {
		return nil, fmt.Errorf("encode mask: %w", err)
	}

	total := binary.Len()
	result := &model.ForegroundResult{
		Width:  binary.Width,
		Height: binary.Height,
		Mask:   rle,
		Bounds: measured.Bounds,
		Stats: model.ForegroundStats{
			ForegroundPixels: measured.Area,
			TotalPixels:      total,
			ForegroundRatio:  roundRatio(measured.Area, total),
		},
		Engine:    ForegroundEngine,
		Timestamp: time.Now().Unix(),
	}
	if opts.IncludeAlpha {
		result.AlphaMask = append([]byte(nil), current.Pix...)
	}

	utils.Logger.Info("foreground extracted",
		zap.Int("width", binary.Width),
		zap.Int("height", binary.Height),
		zap.Int("foreground_pixels", measured.Area),
		zap.Float64("foreground_ratio", result.Stats.ForegroundRatio),
		zap.Duration("duration", time.Since(startTime)))

	return result, nil
}

// detectOutcome 单个来源的处理结果
type detectOutcome struct {
	obj mask.SegmentedObject
	err error
}

// DetectObjects 并发处理每个掩码来源，单个对象失败只记录日志并跳过。
// 远程来源先行下载；整个批次只占用一个处理槽位，批内并发数为 max_concurrent。
// 返回的对象已按 minArea 过滤并按面积降序排列，skipped 为失败或为空的来源数。
func (p *Pipeline) DetectObjects(ctx context.Context, sources []model.MaskSource, minArea int) ([]mask.SegmentedObject, int, error) {
	startTime := time.Now()

	outcomes := make([]detectOutcome, len(sources))
	payloads := p.fetchRemote(ctx, sources, outcomes)
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	release, err := p.acquire(ctx)
	if err != nil {
		return nil, 0, err
	}

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range sources {
		if outcomes[i].err != nil {
			continue
		}
		i := i
		g.Go(func() error {
			outcomes[i].obj, outcomes[i].err = p.safeProcess(i, &sources[i], payloads[i])
			return nil
		})
	}
	_ = g.Wait()
	release()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	objects := make([]mask.SegmentedObject, 0, len(sources))
	skipped := 0
	for i, o := range outcomes {
		if o.err != nil {
			skipped++
			if errors.Is(o.err, mask.ErrEmptyMask) {
				utils.Logger.Debug("skipping empty mask", zap.Int("index", i))
			} else {
				utils.Logger.Warn("failed to process mask", zap.Int("index", i), zap.Error(o.err))
			}
			continue
		}
		objects = append(objects, o.obj)
	}

	curated := mask.Curate(objects, minArea)

	utils.Logger.Info("objects segmented",
		zap.Int("sources", len(sources)),
		zap.Int("skipped", skipped),
		zap.Int("kept", len(curated)),
		zap.Duration("duration", time.Since(startTime)))

	return curated, skipped, nil
}

// fetchRemote 下载仅以 URL 给出的来源，失败写入对应的 outcome
func (p *Pipeline) fetchRemote(ctx context.Context, sources []model.MaskSource, outcomes []detectOutcome) [][]byte {
	payloads := make([][]byte, len(sources))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range sources {
		src := &sources[i]
		if src.RLE != nil || len(src.Data) > 0 || src.Image != "" || src.URL == "" {
			continue
		}
		i := i
		g.Go(func() error {
			if p.fetcher == nil {
				outcomes[i].err = fmt.Errorf("%w: no fetcher configured", ErrSourceFetch)
				return nil
			}
			payloads[i], outcomes[i].err = p.fetcher.Fetch(ctx, src.URL)
			return nil
		})
	}
	_ = g.Wait()

	return payloads
}

// safeProcess 把单个来源的 panic 转换为该对象的错误
func (p *Pipeline) safeProcess(index int, src *model.MaskSource, payload []byte) (obj mask.SegmentedObject, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing mask: %v", r)
		}
	}()
	return p.processSource(index, src, payload)
}

// processSource 把一个来源转换为 SegmentedObject，payload 为已下载的远程图片
func (p *Pipeline) processSource(index int, src *model.MaskSource, payload []byte) (mask.SegmentedObject, error) {
	confidence := p.cfg.DefaultConfidence
	if src.Confidence != nil {
		confidence = *src.Confidence
		if confidence < 0 || confidence > 1 {
			return mask.SegmentedObject{}, fmt.Errorf("%w: confidence %v", mask.ErrInvalidParameter, confidence)
		}
	}
	label := src.Label
	if label == "" {
		label = p.cfg.DefaultLabel
	}

	if src.RLE != nil {
		return p.passThrough(index, src, confidence, label)
	}

	raster, err := rasterize(src, payload)
	if err != nil {
		return mask.SegmentedObject{}, err
	}

	binary := raster.Binarize(p.cfg.Threshold)
	measured, err := mask.Measure(binary, mask.ForegroundThreshold)
	if err != nil {
		return mask.SegmentedObject{}, err
	}
	if measured.Empty() {
		return mask.SegmentedObject{}, mask.ErrEmptyMask
	}

	rle, err := mask.Encode(binary)
	if err != nil {
		return mask.SegmentedObject{}, err
	}

	return mask.SegmentedObject{
		ID:         utils.ObjectID(index),
		RLE:        rle,
		Box:        measured.Bounds.Box(),
		Bounds:     *measured.Bounds,
		Area:       measured.Area,
		Confidence: confidence,
		Label:      label,
	}, nil
}

// passThrough 直接使用已编码的游程，缺失的外接矩形和面积从游程重新计算
func (p *Pipeline) passThrough(index int, src *model.MaskSource, confidence float64, label string) (mask.SegmentedObject, error) {
	rle := *src.RLE
	if err := rle.Validate(); err != nil {
		return mask.SegmentedObject{}, err
	}

	var (
		bounds mask.Bounds
		area   = src.Area
	)
	if len(src.Box) == 4 {
		bounds = mask.Bounds{MinX: src.Box[0], MinY: src.Box[1], MaxX: src.Box[2], MaxY: src.Box[3]}
	} else {
		measured, err := mask.MeasureRLE(rle)
		if err != nil {
			return mask.SegmentedObject{}, err
		}
		if measured.Empty() {
			return mask.SegmentedObject{}, mask.ErrEmptyMask
		}
		bounds = *measured.Bounds
		if area <= 0 {
			area = measured.Area
		}
	}
	if area <= 0 {
		area = rle.Area()
	}

	return mask.SegmentedObject{
		ID:         utils.ObjectID(index),
		RLE:        rle,
		Box:        bounds.Box(),
		Bounds:     bounds,
		Area:       area,
		Confidence: confidence,
		Label:      label,
	}, nil
}

// rasterize 把原始像素、内联图片或已下载的远程图片转换为单通道掩码
func rasterize(src *model.MaskSource, payload []byte) (*mask.Raster, error) {
	var data []byte
	switch {
	case len(src.Data) > 0:
		return mask.FromBuffer(src.Data, src.Width, src.Height)

	case src.Image != "":
		decoded, err := DecodeBase64Image(src.Image)
		if err != nil {
			return nil, err
		}
		data = decoded

	case src.URL != "":
		data = payload

	default:
		return nil, ErrUnsupportedSource
	}

	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return LumaRaster(img)
}

// roundRatio 计算比例并保留两位小数
func roundRatio(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100) / 100
}
