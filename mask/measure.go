package mask

// Bounds 前景像素的外接矩形，坐标均为闭区间
type Bounds struct {
	MinX int `json:"minX"`
	MinY int `json:"minY"`
	MaxX int `json:"maxX"`
	MaxY int `json:"maxY"`
}

// Box 返回 [minX, minY, maxX, maxY]
func (b Bounds) Box() [4]int {
	return [4]int{b.MinX, b.MinY, b.MaxX, b.MaxY}
}

// Width 外接矩形宽度
func (b Bounds) Width() int { return b.MaxX - b.MinX + 1 }

// Height 外接矩形高度
func (b Bounds) Height() int { return b.MaxY - b.MinY + 1 }

// Measurement 外接矩形与前景面积。没有前景时 Bounds 为 nil。
type Measurement struct {
	Bounds *Bounds
	Area   int
}

// Empty 是否没有前景像素
func (m Measurement) Empty() bool {
	return m.Bounds == nil
}

// Measure 单次扫描统计像素值严格大于 threshold 的前景
func Measure(m *Raster, threshold uint8) (Measurement, error) {
	if err := m.Validate(); err != nil {
		return Measurement{}, err
	}

	w, h := m.Width, m.Height
	minX, minY, maxX, maxY := w, h, -1, -1
	area := 0
	for y := 0; y < h; y++ {
		row := m.Pix[y*w : (y+1)*w]
		for x, v := range row {
			if v <= threshold {
				continue
			}
			area++
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}

	if area == 0 {
		return Measurement{}, nil
	}
	return Measurement{
		Bounds: &Bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY},
		Area:   area,
	}, nil
}

// MeasureRLE 直接从游程计算外接矩形与面积，不解码
func MeasureRLE(r RLE) (Measurement, error) {
	if err := r.Validate(); err != nil {
		return Measurement{}, err
	}

	w := r.Width()
	minX, minY, maxX, maxY := w, r.Height(), -1, -1
	area := 0
	pos := 0
	for i, c := range r.Counts {
		if i%2 == 1 && c > 0 {
			start, end := pos, pos+c-1
			y0, y1 := start/w, end/w
			x0, x1 := start%w, end%w
			if y0 != y1 {
				// 跨行的游程覆盖了行首与行尾
				x0, x1 = 0, w-1
			}
			area += c
			minX = min(minX, x0)
			maxX = max(maxX, x1)
			minY = min(minY, y0)
			maxY = max(maxY, y1)
		}
		pos += c
	}

	if area == 0 {
		return Measurement{}, nil
	}
	return Measurement{
		Bounds: &Bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY},
		Area:   area,
	}, nil
}
