package service

import "errors"

var (
	// ErrSourceFetch 远程掩码下载失败
	ErrSourceFetch = errors.New("mask source fetch failed")
	// ErrQueueTimeout 等待处理队列超时
	ErrQueueTimeout = errors.New("processing queue is full")
	// ErrUnsupportedSource 掩码来源为空或无法识别
	ErrUnsupportedSource = errors.New("unsupported mask source")
	// ErrDecodeImage 图片解码失败
	ErrDecodeImage = errors.New("failed to decode image")
)
