package logger

import (
	"Tradelink/internal/api/config"
	"Tradelink/internal/pkg/consts"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// SetupGin 注册 JSON 访问日志与 Recovery
func SetupGin(r *gin.Engine) {
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    LogWriter,
		SkipPaths: []string{"/metrics", "/api/ping"},
		Formatter: func(p gin.LogFormatterParams) string {
			var traceID, userID string
			if p.Keys != nil {
				if id, ok := p.Keys[TraceIDKey].(string); ok {
					traceID = id
				}
				if id, ok := p.Keys[consts.CtxUserIDKey].(string); ok {
					userID = id
				}
			}
			if traceID == "" && p.Request != nil {
				if id, ok := p.Request.Context().Value(TraceIDKey).(string); ok {
					traceID = id
				}
			}

			return fmt.Sprintf(
				`{"time":"%s","level":"INFO","msg":"GIN_ACCESS","trace_id":"%s","user_id":"%s","log_token":"%s","target_index":"%s","method":"%s","path":"%s","status":%d,"latency":"%v","size":%d}`+"\n",
				p.TimeStamp.Format(time.RFC3339),
				traceID,
				userID,
				config.Cfg.Logstash.Token,
				config.Cfg.Logstash.Index,
				p.Method,
				p.Path,
				p.StatusCode,
				p.Latency,
				p.BodySize,
			)
		},
	}))

	r.Use(gin.Recovery())
}
