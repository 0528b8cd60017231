package ai

import (
	"github.com/stwalsh4118/rentroll/internal/config"
	"github.com/stwalsh4118/rentroll/internal/logger"
)

// FromConfig builds the analyzer described by cfg. It returns nil without
// error when AI is disabled, which leaves the pipeline on heuristics.
func FromConfig(cfg config.AIConfig, log *logger.Logger) (Analyzer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client, err := NewOpenAIClient(Options{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	log.Info("AI analyzer enabled", map[string]interface{}{
		"model":               client.Model(),
		"requests_per_minute": cfg.RequestsPerMinute,
		"timeout":             cfg.Timeout.String(),
	})

	return NewAnalyzer(client, AnalyzerOptions{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Timeout:           cfg.Timeout,
	}, log)
}
