package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// BytesMD5 计算字节数组MD5
func BytesMD5(data []byte) string {
	hash := md5.New()
	hash.Write(data)
	return hex.EncodeToString(hash.Sum(nil))
}

// CacheKey 由输入摘要与处理参数拼出缓存键
func CacheKey(prefix, digest string, params ...any) string {
	key := prefix + ":" + digest
	for _, p := range params {
		key += fmt.Sprintf(":%v", p)
	}
	return key
}
