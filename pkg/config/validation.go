package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct tags and the cross-field rules tags cannot
// express.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	if cfg.Admin.Enabled && len(cfg.Admin.JWTSecret) < 32 {
		return errors.New("admin.jwt_secret must be at least 32 characters")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		return fmt.Errorf("metrics.port %d collides with server.port", cfg.Metrics.Port)
	}

	if err := validateUpstream(&cfg.Upstream); err != nil {
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

func validateUpstream(cfg *UpstreamConfig) error {
	if len(cfg.Workers) == 0 {
		return errors.New("upstream.workers: at least one worker is required")
	}

	seen := make(map[string]bool, len(cfg.Workers))
	for _, w := range cfg.Workers {
		if seen[w.Name] {
			return fmt.Errorf("upstream.workers: duplicate worker name %q", w.Name)
		}
		seen[w.Name] = true
	}

	if cfg.Type == "s3" && cfg.S3.Bucket == "" {
		return errors.New("upstream.s3.bucket is required for the s3 upstream")
	}
	return nil
}

// formatValidationErrors renders errors as "Field.Path: failed 'tag' (param)".
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		msg := fmt.Sprintf("%s: failed '%s'", field, fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}
