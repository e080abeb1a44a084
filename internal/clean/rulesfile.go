package clean

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultConfig is the cleaning configuration used when no rules file is
// given: keep only the identity fields, day-first dates, no category
// mapping, no outlier rules.
func DefaultConfig() Config {
	return Config{
		AllowedFields: []string{"source_id", "event_time", "value", "category"},
		DayFirst:      true,
	}
}

// LoadRules reads a cleaning rules file:
//
//	allowed_fields: [source_id, event_time, value, category, views]
//	day_first: true
//	category_mapping:
//	  tech: technology
//	outlier_rules:
//	  views: {min: 0, max: 1000000}
func LoadRules(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, eris.Wrapf(err, "clean: read rules file %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, eris.Wrapf(err, "clean: parse rules file %s", path)
	}
	return cfg, nil
}
