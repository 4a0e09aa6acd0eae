package recycle

import "go.uber.org/zap"

// NewLogger - development: консольный вывод, иначе JSON
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.LogDevelopment {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
