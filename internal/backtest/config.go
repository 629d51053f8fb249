// Package backtest implements the historical simulation core: a single-pass
// bar-by-bar engine, the trade/position ledger it mutates, and the lazy
// performance analyzer computed over the finished result.
package backtest

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"gopkg.in/yaml.v3"

	"github.com/saidsurucu/borsago/pkg/errors"
)

// DefaultWarmupBars is the number of leading bars skipped so trailing
// indicators have enough history to be defined.
const DefaultWarmupBars = 50

// Config holds the engine parameters for a backtest run.
type Config struct {
	// InitialCapital is the starting cash.
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital" validate:"gt=0" jsonschema:"title=Initial Capital,description=Starting cash for the backtest,minimum=0"`
	// CommissionRate is the fractional rate charged on both entry and exit
	// notional.
	CommissionRate float64 `yaml:"commission_rate" json:"commission_rate" validate:"gte=0,lt=1" jsonschema:"title=Commission Rate,description=Fractional commission charged on entry and exit notional,minimum=0"`
	// WarmupBars is the number of leading bars skipped before the strategy
	// is consulted.
	WarmupBars int `yaml:"warmup_bars" json:"warmup_bars" validate:"gte=0" jsonschema:"title=Warmup Bars,description=Leading bars skipped before the strategy is consulted,minimum=0"`
	// StartTime optionally restricts the history request.
	StartTime optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time"`
	// EndTime optionally restricts the history request.
	EndTime optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time"`
}

// DefaultConfig returns a Config with conventional defaults.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 100000,
		CommissionRate: 0.001,
		WarmupBars:     DefaultWarmupBars,
		StartTime:      optional.None[time.Time](),
		EndTime:        optional.None[time.Time](),
	}
}

// UnmarshalYAML implements custom unmarshaling for Config.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plainConfig struct {
		InitialCapital float64    `yaml:"initial_capital"`
		CommissionRate float64    `yaml:"commission_rate"`
		WarmupBars     int        `yaml:"warmup_bars"`
		StartTime      *time.Time `yaml:"start_time"`
		EndTime        *time.Time `yaml:"end_time"`
	}

	var plain plainConfig
	if err := value.Decode(&plain); err != nil {
		return err
	}

	c.InitialCapital = plain.InitialCapital
	c.CommissionRate = plain.CommissionRate
	c.WarmupBars = plain.WarmupBars

	c.StartTime = optional.None[time.Time]()
	if plain.StartTime != nil {
		c.StartTime = optional.Some(*plain.StartTime)
	}

	c.EndTime = optional.None[time.Time]()
	if plain.EndTime != nil {
		c.EndTime = optional.Some(*plain.EndTime)
	}

	return nil
}

// Validate checks the config against its constraints, returning a typed error
// naming the offending field.
func (c *Config) Validate() error {
	validate := validator.New()

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest config", err)
	}

	for _, fieldError := range fieldErrors {
		switch fieldError.Field() {
		case "InitialCapital":
			return errors.Newf(errors.ErrCodeInvalidCapital, "initial capital must be positive, got %v", c.InitialCapital)
		case "CommissionRate":
			return errors.Newf(errors.ErrCodeInvalidCommission, "commission rate must be in [0,1), got %v", c.CommissionRate)
		}
	}

	return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest config", err)
}

// GenerateSchema generates a JSON schema for the Config.
func (c *Config) GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)
	schema.Title = "backtest-config"
	schema.Description = "Configuration schema for the backtest engine"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON generates a JSON schema string for the Config.
func (c *Config) GenerateSchemaJSON() (string, error) {
	schemaBytes, err := json.MarshalIndent(c.GenerateSchema(), "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
