// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AleutianAI/metricsync/services/metricsync/catalog"
	"github.com/AleutianAI/metricsync/services/metricsync/storage"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables applied over the YAML file.
const (
	EnvConfig   = "METRICSYNC_CONFIG"
	EnvInput    = "METRICSYNC_INPUT"
	EnvOutput   = "METRICSYNC_OUTPUT"
	EnvMode     = "METRICSYNC_MODE"
	EnvLogLevel = "METRICSYNC_LOG_LEVEL"
)

// configValidate is the validator instance for Config.
// Initialized in init() with custom validators.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("charset", validateCharset)
}

// validateCharset accepts empty values and any name LookupEncoding knows.
func validateCharset(fl validator.FieldLevel) bool {
	_, err := storage.LookupEncoding(fl.Field().String())
	return err == nil
}

// Load builds the effective configuration.
//
// # Description
//
// Starts from DefaultConfig, decodes the YAML at location over it (fields
// absent from the file keep their defaults, lists are replaced whole),
// applies environment overrides and validates the result. An empty
// location uses $METRICSYNC_CONFIG, and skips the file if that is unset
// too.
//
// # Inputs
//
//   - ctx: Context for reading the file
//   - store: Store used to read location
//   - location: Path or afs URL of the YAML file, may be empty
//
// # Outputs
//
//   - *Config: The validated configuration
//   - error: Read, decode or validation failure
func Load(ctx context.Context, store *storage.Store, location string) (*Config, error) {
	cfg := DefaultConfig()
	if location == "" {
		location = os.Getenv(EnvConfig)
	}
	if location != "" {
		data, err := store.Read(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := Decode(data, &cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", location, err)
		}
	}
	ApplyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode decodes YAML over cfg. Unknown keys are rejected.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Marshal encodes cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// ApplyEnv overrides cfg from METRICSYNC_* and OTEL_* variables.
func ApplyEnv(cfg *Config) {
	setFromEnv(&cfg.Input.Location, EnvInput)
	setFromEnv(&cfg.Output.Location, EnvOutput)
	setFromEnv(&cfg.Catalog.Mode, EnvMode)
	setFromEnv(&cfg.Logging.Level, EnvLogLevel)
	setFromEnv(&cfg.Telemetry.TraceExporter, "OTEL_TRACES_EXPORTER")
	setFromEnv(&cfg.Telemetry.MetricExporter, "OTEL_METRICS_EXPORTER")
	setFromEnv(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setFromEnv(&cfg.Telemetry.PushgatewayURL, "METRICSYNC_PUSHGATEWAY_URL")
}

func setFromEnv(field *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*field = v
	}
}

// Validate checks struct tags, layouts and mode-specific settings.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	for _, layout := range c.Catalog.Layouts {
		if err := layout.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	switch c.Catalog.Mode {
	case catalog.ModeSinglePage:
		if c.Catalog.SinglePage.URL == "" {
			return errors.New("invalid config: catalog.single_page.url is required in single_page mode")
		}
	case catalog.ModeIndexDetail:
		if c.Catalog.IndexDetail.IndexURL == "" {
			return errors.New("invalid config: catalog.index_detail.index_url is required in index_detail mode")
		}
	}
	if c.Fetch.MaxBackoff > 0 && c.Fetch.InitialBackoff > c.Fetch.MaxBackoff {
		return fmt.Errorf("invalid config: fetch.initial_backoff %s exceeds fetch.max_backoff %s",
			c.Fetch.InitialBackoff, c.Fetch.MaxBackoff)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s (got %v)", field, fe.Tag(), fe.Value())
}
