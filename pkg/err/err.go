package errprocess

import (
	"errors"
	"fmt"

	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Wrap 記錄錯誤並以 %w 包裝，保留原始錯誤型別供 errors.Is / errors.As 判斷
func Wrap(err error, errMsg string, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	logger.Log.Error(errMsg, append(fields, zap.Error(err))...)
	return fmt.Errorf("%s : %w", errMsg, err)
}
