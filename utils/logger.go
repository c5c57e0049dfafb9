package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 全局日志，未初始化时丢弃所有输出，mask 包本身不打日志
var Logger = zap.NewNop()

// InitLogger 按 gin 运行模式初始化日志：release 输出 JSON，其余模式输出彩色文本。
// 所有日志都带上 service 字段，便于与图层编辑器的日志区分。
func InitLogger(mode string) error {
	var cfg zap.Config
	if mode == "release" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder

	logger, err := cfg.Build(zap.Fields(zap.String("service", "maskkit")))
	if err != nil {
		return err
	}

	Logger = logger
	return nil
}

// Sync 退出前刷新缓冲
func Sync() {
	_ = Logger.Sync()
}
