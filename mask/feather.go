package mask

import (
	"fmt"
	"math"
)

// DefaultFeatherRadius 默认羽化半径
const DefaultFeatherRadius = 2

// Feather 用可分离的高斯核（sigma = radius/2）先水平后垂直平滑掩码边缘。
// 边界处采样坐标钳制到图像范围内。radius 为 0 时原样返回副本。
func Feather(m *Raster, radius int) (*Raster, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if radius < 0 {
		return nil, fmt.Errorf("%w: radius %d", ErrInvalidParameter, radius)
	}
	if radius == 0 {
		return m.Clone(), nil
	}

	w, h := m.Width, m.Height
	kernel := gaussianKernel(radius)

	temp := make([]float32, w*h)
	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			sum := 0.0
			for i := -radius; i <= radius; i++ {
				nx := clamp(x+i, 0, w-1)
				sum += float64(m.Pix[row+nx]) * kernel[i+radius]
			}
			temp[row+x] = float32(sum)
		}
	}

	out := &Raster{Width: w, Height: h, Pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.0
			for i := -radius; i <= radius; i++ {
				ny := clamp(y+i, 0, h-1)
				sum += float64(temp[ny*w+x]) * kernel[i+radius]
			}
			out.Pix[y*w+x] = uint8(clamp(int(math.Round(sum)), 0, 255))
		}
	}

	return out, nil
}

// gaussianKernel 生成长度为 2*radius+1 且权重和为 1 的一维核
func gaussianKernel(radius int) []float64 {
	sigma := float64(radius) / 2
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
