// internal/workers/evaluation/publish-ruleset/config.go
package publishruleset

import "time"

type Config struct {
	Timeout       time.Duration
	NotifyAuthors bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       30 * time.Second,
		NotifyAuthors: true,
	}
}
