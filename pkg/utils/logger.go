package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger writing to stderr, so stdout stays free for
// command output and the MCP stdio transport. Debug selects the development
// config (console encoding, debug level, stack traces); otherwise the
// production config is used (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = !debug
	return cfg.Build()
}
