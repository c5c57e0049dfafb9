package mask

import (
	"cmp"
	"slices"
)

// DefaultMinArea 默认最小面积，面积不超过该值的对象会被丢弃
const DefaultMinArea = 100

// SegmentedObject 单个分割对象，创建后不再修改
type SegmentedObject struct {
	ID         string  `json:"id"`
	RLE        RLE     `json:"rle"`
	Box        [4]int  `json:"box"`
	Bounds     Bounds  `json:"bounds"`
	Area       int     `json:"area"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

// Curate 过滤掉面积不超过 minArea 的对象，其余按面积降序稳定排序。
// 面积相同的对象保持输入顺序，不修改输入切片。
func Curate(objects []SegmentedObject, minArea int) []SegmentedObject {
	kept := make([]SegmentedObject, 0, len(objects))
	for _, obj := range objects {
		if obj.Area > minArea {
			kept = append(kept, obj)
		}
	}

	slices.SortStableFunc(kept, func(a, b SegmentedObject) int {
		return cmp.Compare(b.Area, a.Area)
	})
	return kept
}
