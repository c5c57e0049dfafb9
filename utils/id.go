package utils

import "fmt"

// ObjectID 按请求中的序号生成对象ID
func ObjectID(index int) string {
	return fmt.Sprintf("obj_%d", index)
}
