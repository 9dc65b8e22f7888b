package testtool

import (
	"net/http"
	_ "net/http/pprof" // 匯入後會自動註冊 pprof endpoint

	"video_ingest_service/pkg/config"
	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
)

// PprofAddr pprof 只綁本機
const PprofAddr = "127.0.0.1:6060"

// StartPprof enabled 且非 production 時才啟動 pprof，回傳是否有啟動
func StartPprof(enabled bool) bool {
	if !enabled {
		return false
	}
	if config.IsProduction() {
		logger.Log.Info("Production environment detected, pprof is disabled.")
		return false
	}

	go func() {
		logger.Log.Info("Starting pprof server", zap.String("addr", PprofAddr))
		if err := http.ListenAndServe(PprofAddr, nil); err != nil {
			logger.Log.Error("pprof server failed", zap.Error(err))
		}
	}()
	return true
}

// 常用分析：
// curl http://localhost:6060/debug/pprof/
// go tool pprof http://localhost:6060/debug/pprof/profile?seconds=30
// go tool pprof http://localhost:6060/debug/pprof/heap
// go tool pprof http://localhost:6060/debug/pprof/goroutine
// 轉碼時 ffmpeg 在子 process 執行，這裡只會看到 worker 本身的 goroutine 與記憶體
