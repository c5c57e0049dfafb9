package service

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/TIANLI0/MaskKit/mask"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeImage 解码 PNG/JPEG/GIF/BMP/TIFF/WebP 图片
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeImage, err)
	}
	return img, nil
}

// DecodeBase64Image 解码 base64 字符串，支持 data URL 前缀
func DecodeBase64Image(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 {
			return nil, fmt.Errorf("%w: malformed data url", ErrDecodeImage)
		}
		s = s[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeImage, err)
	}
	return data, nil
}

// AlphaRaster 提取图片的 alpha 通道
func AlphaRaster(img image.Image) (*mask.Raster, error) {
	return channelRaster(img, 3)
}

// LumaRaster 提取图片的第一个颜色通道，灰度掩码图各通道相同
func LumaRaster(img image.Image) (*mask.Raster, error) {
	return channelRaster(img, 0)
}

func channelRaster(img image.Image, channel int) (*mask.Raster, error) {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	r, err := mask.NewRaster(w, h)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			r.Pix[y*w+x] = row[x*4+channel]
		}
	}
	return r, nil
}
