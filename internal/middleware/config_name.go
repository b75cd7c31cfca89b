package middleware

import (
	"context"
	"net/http"
	"strings"

	"scriptbridge/internal/config"
)

// ConfigHeader selects the named configuration an evaluation runs under.
const ConfigHeader = "X-Script-Config"

type contextKey string

const configNameKey contextKey = "configName"

func ConfigName(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := config.DefaultName
		if h := strings.TrimSpace(r.Header.Get(ConfigHeader)); h != "" {
			name = h
		}
		ctx := context.WithValue(r.Context(), configNameKey, name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetConfigName(ctx context.Context) string {
	if name, ok := ctx.Value(configNameKey).(string); ok {
		return name
	}
	return config.DefaultName
}
