package mask

import "fmt"

// ForegroundThreshold 前景判定阈值，像素值严格大于该值即为前景
const ForegroundThreshold = 128

// MaxPixels 单个掩码允许的最大像素数
const MaxPixels = 1 << 30

// pixelCount 返回 width*height，尺寸非正或乘积超过 MaxPixels 时报错
func pixelCount(width, height int) (int, error) {
	if width <= 0 || height <= 0 || width > MaxPixels/height {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return width * height, nil
}

// Raster 单通道像素缓冲区，按行存储
type Raster struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewRaster 创建全零掩码
func NewRaster(width, height int) (*Raster, error) {
	n, err := pixelCount(width, height)
	if err != nil {
		return nil, err
	}
	return &Raster{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, n),
	}, nil
}

// FromBuffer 复制外部缓冲区构造掩码
func FromBuffer(pix []uint8, width, height int) (*Raster, error) {
	n, err := pixelCount(width, height)
	if err != nil {
		return nil, err
	}
	if len(pix) != n {
		return nil, fmt.Errorf("%w: buffer has %d samples, want %d",
			ErrInvalidDimensions, len(pix), n)
	}
	buf := make([]uint8, len(pix))
	copy(buf, pix)
	return &Raster{Width: width, Height: height, Pix: buf}, nil
}

// Validate 检查尺寸与缓冲区长度是否一致
func (r *Raster) Validate() error {
	if r == nil {
		return ErrInvalidDimensions
	}
	n, err := pixelCount(r.Width, r.Height)
	if err != nil {
		return err
	}
	if len(r.Pix) != n {
		return fmt.Errorf("%w: buffer has %d samples, want %d", ErrInvalidDimensions, len(r.Pix), n)
	}
	return nil
}

// Clone 深拷贝
func (r *Raster) Clone() *Raster {
	buf := make([]uint8, len(r.Pix))
	copy(buf, r.Pix)
	return &Raster{Width: r.Width, Height: r.Height, Pix: buf}
}

// At 返回 (x, y) 处的像素值，越界返回 0
func (r *Raster) At(x, y int) uint8 {
	if x < 0 || x >= r.Width || y < 0 || y >= r.Height {
		return 0
	}
	return r.Pix[y*r.Width+x]
}

// Set 设置 (x, y) 处的像素值，越界忽略
func (r *Raster) Set(x, y int, v uint8) {
	if x < 0 || x >= r.Width || y < 0 || y >= r.Height {
		return
	}
	r.Pix[y*r.Width+x] = v
}

// Len 像素总数
func (r *Raster) Len() int {
	return r.Width * r.Height
}

// Binarize 按阈值二值化，前景写 255，背景写 0
func (r *Raster) Binarize(threshold uint8) *Raster {
	out := &Raster{Width: r.Width, Height: r.Height, Pix: make([]uint8, len(r.Pix))}
	for i, v := range r.Pix {
		if v > threshold {
			out.Pix[i] = 255
		}
	}
	return out
}
