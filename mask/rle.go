package mask

import "fmt"

// RLE 游程编码，Counts 从背景游程开始交替，Size 为 [height, width]
type RLE struct {
	Counts []int  `json:"counts"`
	Size   [2]int `json:"size"`
}

// Height 掩码高度
func (r RLE) Height() int { return r.Size[0] }

// Width 掩码宽度
func (r RLE) Width() int { return r.Size[1] }

// Validate 检查游程是否与尺寸一致
func (r RLE) Validate() error {
	total, err := pixelCount(r.Width(), r.Height())
	if err != nil {
		return err
	}
	if len(r.Counts) == 0 {
		return fmt.Errorf("%w: no runs", ErrMalformedRLE)
	}
	sum := 0
	for i, c := range r.Counts {
		if c < 0 {
			return fmt.Errorf("%w: negative run %d at index %d", ErrMalformedRLE, c, i)
		}
		// 逐段与剩余像素比较，避免累加溢出
		if c > total-sum {
			return fmt.Errorf("%w: runs exceed %d pixels at index %d", ErrMalformedRLE, total, i)
		}
		sum += c
	}
	if sum != total {
		return fmt.Errorf("%w: runs sum to %d, want %d", ErrMalformedRLE, sum, total)
	}
	return nil
}

// Encode 将掩码编码为游程，像素值大于 128 视为前景。
// 首像素为前景时第一个游程为 0。
func Encode(m *Raster) (RLE, error) {
	if err := m.Validate(); err != nil {
		return RLE{}, err
	}

	counts := make([]int, 0, 16)
	currentBit := uint8(0)
	runLength := 0
	for _, v := range m.Pix {
		bit := uint8(0)
		if v > ForegroundThreshold {
			bit = 1
		}
		if bit != currentBit {
			counts = append(counts, runLength)
			runLength = 1
			currentBit = bit
		} else {
			runLength++
		}
	}
	counts = append(counts, runLength)

	return RLE{Counts: counts, Size: [2]int{m.Height, m.Width}}, nil
}

// Decode 将游程还原为掩码，前景写 255
func Decode(r RLE) (*Raster, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	out, err := NewRaster(r.Width(), r.Height())
	if err != nil {
		return nil, err
	}

	pos := 0
	for i, c := range r.Counts {
		if i%2 == 1 {
			fill := out.Pix[pos : pos+c]
			for j := range fill {
				fill[j] = 255
			}
		}
		pos += c
	}
	return out, nil
}

// Area 前景像素数
func (r RLE) Area() int {
	area := 0
	for i := 1; i < len(r.Counts); i += 2 {
		area += r.Counts[i]
	}
	return area
}
