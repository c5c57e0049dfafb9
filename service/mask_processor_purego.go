//go:build !gocv
// +build !gocv

package service

import "github.com/TIANLI0/MaskKit/mask"

// MaskProcessor 纯 Go 的连通域处理，未启用 gocv 构建标签时使用
type MaskProcessor struct{}

func NewMaskProcessor() *MaskProcessor {
	return &MaskProcessor{}
}

// KeepLargest 保留掩码中最大的 8 连通前景区域，输入须已二值化。
// 面积相同时保留扫描顺序中先出现的区域。
func (mp *MaskProcessor) KeepLargest(m *mask.Raster) (*mask.Raster, error) {
	w, h := m.Width, m.Height
	labels := make([]int32, w*h)
	var (
		stack     []int
		bestLabel int32
		bestArea  int
		next      int32
	)

	for start, v := range m.Pix {
		if v == 0 || labels[start] != 0 {
			continue
		}
		next++
		labels[start] = next
		stack = append(stack[:0], start)
		area := 0

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++

			x, y := idx%w, idx/w
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					n := ny*w + nx
					if m.Pix[n] != 0 && labels[n] == 0 {
						labels[n] = next
						stack = append(stack, n)
					}
				}
			}
		}

		if area > bestArea {
			bestArea = area
			bestLabel = next
		}
	}

	out := &mask.Raster{Width: w, Height: h, Pix: make([]uint8, w*h)}
	if bestLabel == 0 {
		return out, nil
	}
	for i, l := range labels {
		if l == bestLabel {
			out.Pix[i] = m.Pix[i]
		}
	}
	return out, nil
}
