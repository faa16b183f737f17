// internal/workers/evaluation/evaluate-responses/config.go
package evaluateresponses

import "time"

type Config struct {
	Timeout               time.Duration
	AnalyticsTimeout      time.Duration
	DefaultUpgradeMessage string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:          10 * time.Second,
		AnalyticsTimeout: 3 * time.Second,
	}
}
