package mask

import "errors"

var (
	// ErrInvalidDimensions 宽或高不是正数，或缓冲区长度与尺寸不符
	ErrInvalidDimensions = errors.New("invalid mask dimensions")
	// ErrMalformedRLE 游程之和与尺寸不符
	ErrMalformedRLE = errors.New("malformed rle")
	// ErrEmptyMask 掩码中没有前景像素
	ErrEmptyMask = errors.New("empty mask")
	// ErrInvalidParameter 迭代次数或羽化半径非法
	ErrInvalidParameter = errors.New("invalid parameter")
)
