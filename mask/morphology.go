package mask

import "fmt"

// DefaultRefineIterations 默认开运算次数
const DefaultRefineIterations = 1

// Refine 对掩码执行 iterations 次 3x3 开运算（先腐蚀后膨胀）。
// 只处理内部像素，最外一圈像素保持不变。
func Refine(m *Raster, iterations int) (*Raster, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if iterations < 0 {
		return nil, fmt.Errorf("%w: iterations %d", ErrInvalidParameter, iterations)
	}

	w, h := m.Width, m.Height
	refined := m.Clone()

	for iter := 0; iter < iterations; iter++ {
		// temp 的边框保持为 0，膨胀时会读到
		temp := make([]uint8, w*h)
		erode(refined.Pix, temp, w, h)
		dilate(temp, refined.Pix, w, h)
	}

	return refined, nil
}

// erode 将 src 内部像素的 3x3 最小值写入 dst
func erode(src, dst []uint8, w, h int) {
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			minVal := uint8(255)
			for dy := -1; dy <= 1; dy++ {
				row := (y + dy) * w
				for dx := -1; dx <= 1; dx++ {
					if v := src[row+x+dx]; v < minVal {
						minVal = v
					}
				}
			}
			dst[y*w+x] = minVal
		}
	}
}

// dilate 将 src 内部像素的 3x3 最大值写入 dst
func dilate(src, dst []uint8, w, h int) {
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			maxVal := uint8(0)
			for dy := -1; dy <= 1; dy++ {
				row := (y + dy) * w
				for dx := -1; dx <= 1; dx++ {
					if v := src[row+x+dx]; v > maxVal {
						maxVal = v
					}
				}
			}
			dst[y*w+x] = maxVal
		}
	}
}
