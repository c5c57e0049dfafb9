//go:build gocv
// +build gocv

package service

import (
	"fmt"
	"image/color"

	"github.com/TIANLI0/MaskKit/mask"
	"gocv.io/x/gocv"
)

// MaskProcessor 基于 OpenCV 的连通域处理
type MaskProcessor struct{}

func NewMaskProcessor() *MaskProcessor {
	return &MaskProcessor{}
}

// KeepLargest 保留掩码中最大的连通区域，输入须已二值化
func (mp *MaskProcessor) KeepLargest(m *mask.Raster) (*mask.Raster, error) {
	mat, err := gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8U, m.Pix)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap mask: %w", err)
	}
	defer mat.Close()

	contours := gocv.FindContours(mat, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return m.Clone(), nil
	}

	maxArea := -1.0
	maxIndex := 0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > maxArea {
			maxArea = area
			maxIndex = i
		}
	}

	newMask := gocv.NewMatWithSize(m.Height, m.Width, gocv.MatTypeCV8U)
	defer newMask.Close()
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.DrawContours(&newMask, contours, maxIndex, white, -1)

	// 只保留原掩码中本来就是前景的像素
	kept := gocv.NewMat()
	defer kept.Close()
	gocv.BitwiseAnd(mat, newMask, &kept)

	return mask.FromBuffer(kept.ToBytes(), m.Width, m.Height)
}
