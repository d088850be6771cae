package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on. Modes: "extract"
// (provider credentials and pipeline limits), "serve" (extract plus server
// settings) and "runs" (store only).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "extract":
		problems = append(problems, c.validateProvider()...)
		problems = append(problems, c.validatePipeline()...)
		problems = append(problems, c.validateStore()...)
	case "serve":
		problems = append(problems, c.validateProvider()...)
		problems = append(problems, c.validatePipeline()...)
		problems = append(problems, c.validateStore()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
		}
	case "runs":
		problems = append(problems, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateProvider() []string {
	var problems []string
	switch c.Provider.Name {
	case "anthropic":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "openai":
		if c.OpenAI.Key == "" {
			problems = append(problems, "openai.key is required")
		}
	case "gemini":
		if c.Gemini.Key == "" {
			problems = append(problems, "gemini.key is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("provider.name %q is not one of anthropic, openai, gemini", c.Provider.Name))
	}
	return problems
}

func (c *Config) validatePipeline() []string {
	var problems []string
	if c.Classify.Threshold < 0 || c.Classify.Threshold > 100 {
		problems = append(problems, fmt.Sprintf("classify.threshold must be 0-100, got %v", c.Classify.Threshold))
	}
	if c.Pipeline.Concurrency <= 0 {
		problems = append(problems, "pipeline.concurrency must be positive")
	}
	if c.Years.ScanPages <= 0 {
		problems = append(problems, "years.scan_pages must be positive")
	}
	if len(c.Years.Fallback) == 0 {
		problems = append(problems, "years.fallback must list at least one year")
	}
	return problems
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "", "none":
		return nil
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		return nil
	}
	return []string{fmt.Sprintf("store.driver %q is not one of sqlite, postgres, none", c.Store.Driver)}
}
