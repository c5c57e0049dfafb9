package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/mask"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	bodies map[string][]byte
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if data, ok := f.bodies[url]; ok {
		return data, nil
	}
	return nil, errors.Join(ErrSourceFetch, errors.New("not found"))
}

// slowFetcher 每次下载固定耗时
type slowFetcher struct {
	delay time.Duration
	body  []byte
}

func (f *slowFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	select {
	case <-time.After(f.delay):
		return f.body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestPipeline(fetcher Fetcher) *Pipeline {
	cfg := config.Default().Pipeline
	return NewPipeline(&cfg, fetcher)
}

// blockRaster 返回 w x h 掩码，rect 内为 255
func blockRaster(t *testing.T, w, h int, rects ...image.Rectangle) *mask.Raster {
	t.Helper()
	r, err := mask.NewRaster(w, h)
	require.NoError(t, err)
	for _, rect := range rects {
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				r.Set(x, y, 255)
			}
		}
	}
	return r
}

func sumCounts(counts []int) int {
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}

func encodePNG(t *testing.T, r *mask.Raster) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			img.SetGray(x, y, color.Gray{Y: r.At(x, y)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestExtractForegroundPlain(t *testing.T) {
	p := newTestPipeline(nil)
	alpha := blockRaster(t, 20, 20, image.Rect(5, 5, 15, 15))

	res, err := p.ExtractForeground(context.Background(), alpha, ExtractOptions{})
	require.NoError(t, err)
	require.Equal(t, &mask.Bounds{MinX: 5, MinY: 5, MaxX: 14, MaxY: 14}, res.Bounds)
	require.Equal(t, model.ForegroundStats{ForegroundPixels: 100, TotalPixels: 400, ForegroundRatio: 0.25}, res.Stats)
	require.Equal(t, 400, sumCounts(res.Mask.Counts))
	require.Equal(t, [2]int{20, 20}, res.Mask.Size)
	require.Nil(t, res.AlphaMask)
	require.Equal(t, ForegroundEngine, res.Engine)
}

func TestExtractForegroundDefaults(t *testing.T) {
	p := newTestPipeline(nil)
	alpha := blockRaster(t, 20, 20, image.Rect(5, 5, 15, 15))
	// 孤立噪点应被开运算去掉
	alpha.Set(2, 17, 255)

	opts := p.DefaultExtractOptions()
	opts.IncludeAlpha = true
	res, err := p.ExtractForeground(context.Background(), alpha, opts)
	require.NoError(t, err)
	require.Equal(t, &mask.Bounds{MinX: 5, MinY: 5, MaxX: 14, MaxY: 14}, res.Bounds)
	require.Equal(t, 400, res.Stats.TotalPixels)
	require.Equal(t, roundRatio(res.Stats.ForegroundPixels, 400), res.Stats.ForegroundRatio)
	require.Equal(t, res.Stats.ForegroundPixels, res.Mask.Area())
	require.Len(t, res.AlphaMask, 400)
	require.Equal(t, uint8(255), alpha.At(2, 17), "input must not change")
}

func TestExtractForegroundEmpty(t *testing.T) {
	p := newTestPipeline(nil)
	alpha, err := mask.NewRaster(8, 8)
	require.NoError(t, err)

	res, err := p.ExtractForeground(context.Background(), alpha, p.DefaultExtractOptions())
	require.NoError(t, err)
	require.Nil(t, res.Bounds)
	require.Zero(t, res.Stats.ForegroundPixels)
	require.Equal(t, []int{64}, res.Mask.Counts)
}

func TestExtractForegroundMaxForegroundOnly(t *testing.T) {
	p := newTestPipeline(nil)
	alpha := blockRaster(t, 30, 20, image.Rect(2, 2, 8, 8), image.Rect(12, 4, 26, 16))

	res, err := p.ExtractForeground(context.Background(), alpha, ExtractOptions{MaxForegroundOnly: true})
	require.NoError(t, err)
	require.Equal(t, &mask.Bounds{MinX: 12, MinY: 4, MaxX: 25, MaxY: 15}, res.Bounds)
	require.Equal(t, 14*12, res.Stats.ForegroundPixels)
}

func TestExtractForegroundRejectsInvalidInput(t *testing.T) {
	p := newTestPipeline(nil)
	alpha := blockRaster(t, 4, 4)

	_, err := p.ExtractForeground(context.Background(), alpha, ExtractOptions{Iterations: 10, EdgeRefinement: true})
	require.ErrorIs(t, err, mask.ErrInvalidParameter)

	_, err = p.ExtractForeground(context.Background(), alpha, ExtractOptions{FeatherRadius: -1})
	require.ErrorIs(t, err, mask.ErrInvalidParameter)

	_, err = p.ExtractForeground(context.Background(), &mask.Raster{Width: 0, Height: 2}, ExtractOptions{})
	require.ErrorIs(t, err, mask.ErrInvalidDimensions)

	_, err = p.ExtractForeground(context.Background(), nil, ExtractOptions{})
	require.ErrorIs(t, err, mask.ErrInvalidDimensions)
}

func TestExtractForegroundQueueTimeout(t *testing.T) {
	cfg := config.Default().Pipeline
	cfg.MaxConcurrent = 1
	p := NewPipeline(&cfg, nil)
	p.semaphore <- struct{}{}
	defer func() { <-p.semaphore }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.ExtractForeground(ctx, blockRaster(t, 4, 4), ExtractOptions{})
	require.ErrorIs(t, err, ErrQueueTimeout)
}

func TestDetectObjects(t *testing.T) {
	const w, h = 40, 30
	big := blockRaster(t, w, h, image.Rect(0, 0, 20, 15))     // 300
	medium := blockRaster(t, w, h, image.Rect(30, 20, 40, 30)) // 100 -> 过滤
	remote := blockRaster(t, w, h, image.Rect(10, 10, 25, 20)) // 150
	tiny := blockRaster(t, w, h, image.Rect(1, 1, 3, 3))

	tinyRLE, err := mask.Encode(tiny)
	require.NoError(t, err)
	passRLE, err := mask.Encode(blockRaster(t, w, h, image.Rect(5, 5, 20, 25))) // 300
	require.NoError(t, err)

	conf := 0.75
	sources := []model.MaskSource{
		{Data: big.Pix, Width: w, Height: h},
		{Data: make([]byte, w*h), Width: w, Height: h},
		{RLE: &passRLE, Confidence: &conf, Label: "person"},
		{URL: "http://masks/remote.png"},
		{URL: "http://masks/missing.png"},
		{RLE: &mask.RLE{Counts: []int{1, 2}, Size: [2]int{h, w}}},
		{Data: medium.Pix, Width: w, Height: h},
		{RLE: &tinyRLE},
		{Data: []byte{1, 2, 3}, Width: w, Height: h},
		{},
	}
	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"http://masks/remote.png": encodePNG(t, remote),
	}}
	p := newTestPipeline(fetcher)

	objects, skipped, err := p.DetectObjects(context.Background(), sources, mask.DefaultMinArea)
	require.NoError(t, err)
	require.Equal(t, 5, skipped)

	ids := make([]string, len(objects))
	areas := make([]int, len(objects))
	for i, o := range objects {
		ids[i] = o.ID
		areas[i] = o.Area
		require.Equal(t, w*h, sumCounts(o.RLE.Counts))
	}
	require.Equal(t, []string{"obj_0", "obj_2", "obj_3"}, ids)
	require.Equal(t, []int{300, 300, 150}, areas)

	require.Equal(t, mask.Bounds{MinX: 0, MinY: 0, MaxX: 19, MaxY: 14}, objects[0].Bounds)
	require.Equal(t, [4]int{0, 0, 19, 14}, objects[0].Box)
	require.Equal(t, 0.9, objects[0].Confidence)
	require.Equal(t, "object", objects[0].Label)

	require.Equal(t, mask.Bounds{MinX: 5, MinY: 5, MaxX: 19, MaxY: 24}, objects[1].Bounds)
	require.Equal(t, 0.75, objects[1].Confidence)
	require.Equal(t, "person", objects[1].Label)

	require.Equal(t, mask.Bounds{MinX: 10, MinY: 10, MaxX: 24, MaxY: 19}, objects[2].Bounds)
}

func TestDetectObjectsPassThroughKeepsProvidedBox(t *testing.T) {
	rle, err := mask.Encode(blockRaster(t, 20, 20, image.Rect(0, 0, 20, 10)))
	require.NoError(t, err)

	p := newTestPipeline(nil)
	objects, skipped, err := p.DetectObjects(context.Background(), []model.MaskSource{
		{RLE: &rle, Box: []int{1, 2, 3, 4}, Area: 500},
	}, 100)
	require.NoError(t, err)
	require.Zero(t, skipped)
	require.Len(t, objects, 1)
	require.Equal(t, mask.Bounds{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4}, objects[0].Bounds)
	require.Equal(t, 500, objects[0].Area)
}

func TestDetectObjectsRejectsBadConfidence(t *testing.T) {
	p := newTestPipeline(nil)
	bad := 1.5
	big := blockRaster(t, 20, 20, image.Rect(0, 0, 20, 20))

	objects, skipped, err := p.DetectObjects(context.Background(), []model.MaskSource{
		{Data: big.Pix, Width: 20, Height: 20, Confidence: &bad},
	}, 100)
	require.NoError(t, err)
	require.Equal(t, 1, skipped)
	require.Empty(t, objects)
}

func TestDetectObjectsSkipsOverflowingDimensions(t *testing.T) {
	p := newTestPipeline(nil)
	big := blockRaster(t, 20, 20, image.Rect(0, 0, 20, 10))

	objects, skipped, err := p.DetectObjects(context.Background(), []model.MaskSource{
		{Data: []byte{255, 255, 255, 255}, Width: (1 << 62) + 1, Height: 4},
		{Data: big.Pix, Width: 20, Height: 20},
		{RLE: &mask.RLE{Counts: []int{0, 4}, Size: [2]int{4, (1 << 62) + 1}}},
	}, 100)
	require.NoError(t, err)
	require.Equal(t, 2, skipped)
	require.Len(t, objects, 1)
	require.Equal(t, "obj_1", objects[0].ID)
	require.Equal(t, 200, objects[0].Area)
}

func TestDetectObjectsMoreSourcesThanSlots(t *testing.T) {
	cfg := config.Default().Pipeline
	cfg.MaxConcurrent = 1
	cfg.QueueTimeout = 1
	fetcher := &slowFetcher{
		delay: 200 * time.Millisecond,
		body:  encodePNG(t, blockRaster(t, 20, 20, image.Rect(0, 0, 20, 10))),
	}
	p := NewPipeline(&cfg, fetcher)

	// 8 次串行下载共 1.6s，超过排队超时
	sources := make([]model.MaskSource, 8)
	for i := range sources {
		sources[i] = model.MaskSource{URL: fmt.Sprintf("http://masks/%d.png", i)}
	}

	objects, skipped, err := p.DetectObjects(context.Background(), sources, 100)
	require.NoError(t, err)
	require.Zero(t, skipped)
	require.Len(t, objects, 8)
	for _, o := range objects {
		require.Equal(t, 200, o.Area)
	}
}

func TestDetectObjectsBatchQueueTimeout(t *testing.T) {
	cfg := config.Default().Pipeline
	cfg.MaxConcurrent = 1
	p := NewPipeline(&cfg, nil)
	p.semaphore <- struct{}{}
	defer func() { <-p.semaphore }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	big := blockRaster(t, 20, 20, image.Rect(0, 0, 20, 10))
	_, _, err := p.DetectObjects(ctx, []model.MaskSource{{Data: big.Pix, Width: 20, Height: 20}}, 100)
	require.ErrorIs(t, err, ErrQueueTimeout)
}

func TestDetectObjectsCancelled(t *testing.T) {
	p := newTestPipeline(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.DetectObjects(ctx, []model.MaskSource{{}}, 100)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRoundRatio(t *testing.T) {
	require.Equal(t, 0.33, roundRatio(1, 3))
	require.Equal(t, 0.67, roundRatio(2, 3))
	require.Equal(t, 1.0, roundRatio(5, 5))
	require.Zero(t, roundRatio(0, 0))
}
