package utils

import (
	"net/http"
	"strings"
	"time"

	"github.com/goodsign/monday"
	"github.com/metroinfo/metrobot/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger based on the configuration
func NewLogger(cfg config.Log) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Level == "debug" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		level, err := zapcore.ParseLevel(cfg.Level)
		if err == nil {
			zcfg.Level = zap.NewAtomicLevelAt(level)
		}
	}

	if cfg.Format == "console" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.DisableStacktrace = true
	} else {
		zcfg.Encoding = "json"
	}

	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.MessageKey = "message"

	return zcfg.Build()
}

// GetClientIP retrieves the client IP address from the request information.
// It detects common proxy headers to return the actual client's IP and not the proxy's.
func GetClientIP(r *http.Request) (ip string) {
	for _, header := range []string{"X-Real-Ip", "Real-Ip", "X-Forwarded-For", "X-Forwarded", "Forwarded-For", "Forwarded"} {
		if pIPs := r.Header.Get(header); pIPs != "" {
			ip = strings.TrimSpace(strings.Split(pIPs, ",")[0])
			break
		}
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	return strings.Split(ip, ":")[0]
}

// Chunk splits s into consecutive slices of at most size elements
func Chunk[T any](s []T, size int) [][]T {
	if size <= 0 {
		return [][]T{s}
	}
	chunks := [][]T{}
	for size < len(s) {
		s, chunks = s[size:], append(chunks, s[0:size:size])
	}
	if len(s) > 0 {
		chunks = append(chunks, s)
	}
	return chunks
}

// FormatSpanishDate formats t with Spanish month and weekday names
func FormatSpanishDate(t time.Time, layout string) string {
	return monday.Format(t, layout, monday.LocaleEsES)
}
