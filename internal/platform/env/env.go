package env

import (
	"os"
	"strconv"
	"strings"

	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

// Get reads an environment variable, logging when the default is used.
func Get(key, def string, log *logger.Logger) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		if log != nil {
			log.Debug("env var unset, using default", "key", key, "default", def)
		}
		return def
	}
	return v
}

func GetInt(key string, def int, log *logger.Logger) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		if log != nil {
			log.Warn("env var not an int, using default", "key", key, "value", v, "default", def)
		}
		return def
	}
	return i
}
