// Package logging builds the process-wide zap logger.
package logging

import "go.uber.org/zap"

// New constructs the logger. Verbose lowers the level to debug and switches
// to the development encoder; otherwise production JSON output is used.
func New(verbose bool) (*zap.Logger, error) {
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
