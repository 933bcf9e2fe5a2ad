package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// An S3 store needs a bucket; other S3 options have usable defaults
	if cfg.Remote.Type == "s3" {
		bucket, _ := cfg.Remote.S3["bucket"].(string)
		if bucket == "" {
			return fmt.Errorf("remote.s3: bucket is required when remote.type is s3")
		}
	}

	// A burst without a sustained rate is meaningless
	if cfg.Remote.RateLimit.Burst > 0 && cfg.Remote.RateLimit.RequestsPerSecond == 0 {
		return fmt.Errorf("remote.rate_limit: burst is set but requests_per_second is 0")
	}

	// An enabled journal needs somewhere to live
	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		return fmt.Errorf("journal: path is required when journal is enabled")
	}

	// An enabled metrics endpoint needs a listenable port
	if cfg.Metrics.Enabled && cfg.Metrics.Port <= 0 {
		return fmt.Errorf("metrics: port is required when metrics are enabled")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
