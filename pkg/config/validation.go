package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for structural and cross-field
// errors. Struct tags carry the field-level rules; backend selections
// are checked here because their requirements depend on the chosen type.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	switch cfg.NodeStore.Type {
	case "badger":
		if cfg.NodeStore.Badger.Dir == "" {
			return fmt.Errorf("node_store.badger.dir is required for the badger backend")
		}
	case "s3":
		if cfg.NodeStore.S3.Bucket == "" {
			return fmt.Errorf("node_store.s3.bucket is required for the s3 backend")
		}
	}

	if cfg.MetaStore.Type == "badger" && cfg.MetaStore.Badger.Dir == "" {
		return fmt.Errorf("meta_store.badger.dir is required for the badger backend")
	}

	if cfg.Cache.Type == "redis" && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required for the redis cache")
	}

	if cfg.Limits.NodeLimit < 64 {
		return fmt.Errorf("limits.node_limit must be at least 64 bytes, got %d", cfg.Limits.NodeLimit)
	}

	return nil
}

// formatValidationError converts validator errors into readable messages.
func formatValidationError(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	for _, fieldErr := range errs {
		return fmt.Errorf("invalid configuration: field %q failed rule %q",
			fieldErr.Namespace(), fieldErr.Tag())
	}
	return err
}
