// README: Zap logger initialization.
package infra

import "go.uber.org/zap"

// NewLogger builds the process-wide structured logger. Development mode
// gives human-readable output when CHECKRIDE_ENV is not production.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
