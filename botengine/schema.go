package botengine

import (
	"fmt"
	"math"

	domainBot "github.com/AzielCF/az-wabot/domains/bot"
	pkgError "github.com/AzielCF/az-wabot/pkg/error"
)

// NormalizeConfig validates cfg against schema and returns a copy with
// defaults applied. Unknown keys are rejected, not dropped. Values coming
// through JSON arrive as float64 and []any; both are normalized to their
// schema type.
func NormalizeConfig(schema domainBot.ConfigSchema, cfg map[string]any) (map[string]any, error) {
	for key := range cfg {
		if _, known := schema[key]; !known {
			return nil, pkgError.BadConfigError(fmt.Sprintf("unknown config key %q", key))
		}
	}

	out := make(map[string]any, len(schema))
	for key, opt := range schema {
		raw, present := cfg[key]
		if !present || raw == nil {
			if opt.Required && opt.Default == nil {
				return nil, pkgError.BadConfigError(fmt.Sprintf("config key %q is required", key))
			}
			if opt.Default != nil {
				out[key] = opt.Default
			}
			continue
		}

		value, err := coerceOption(key, opt, raw)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

func coerceOption(key string, opt domainBot.Option, raw any) (any, error) {
	switch opt.Type {
	case domainBot.OptionString:
		s, ok := raw.(string)
		if !ok {
			return nil, pkgError.BadConfigError(fmt.Sprintf("config key %q must be a string", key))
		}
		return s, nil

	case domainBot.OptionInt:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, pkgError.BadConfigError(fmt.Sprintf("config key %q must be an integer", key))
			}
			return int(v), nil
		}
		return nil, pkgError.BadConfigError(fmt.Sprintf("config key %q must be an integer", key))

	case domainBot.OptionBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, pkgError.BadConfigError(fmt.Sprintf("config key %q must be a boolean", key))
		}
		return b, nil

	case domainBot.OptionEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, pkgError.BadConfigError(fmt.Sprintf("config key %q must be a string", key))
		}
		if !contains(opt.Enum, s) {
			return nil, pkgError.BadConfigError(fmt.Sprintf("config key %q must be one of %v", key, opt.Enum))
		}
		return s, nil

	case domainBot.OptionStringList:
		items, err := toStringSlice(raw)
		if err != nil {
			return nil, pkgError.BadConfigError(fmt.Sprintf("config key %q must be a list of strings", key))
		}
		if len(opt.Enum) > 0 {
			for _, item := range items {
				if !contains(opt.Enum, item) {
					return nil, pkgError.BadConfigError(fmt.Sprintf("config key %q accepts only %v", key, opt.Enum))
				}
			}
		}
		return items, nil
	}
	return nil, pkgError.BadConfigError(fmt.Sprintf("config key %q has unsupported type %q", key, opt.Type))
}

func toStringSlice(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("non-string element")
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("not a list")
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// ConfigString reads a normalized string option, falling back to def.
func ConfigString(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return def
}

// ConfigBool reads a normalized bool option.
func ConfigBool(cfg map[string]any, key string) bool {
	v, _ := cfg[key].(bool)
	return v
}

// ConfigStringList reads a normalized list option.
func ConfigStringList(cfg map[string]any, key string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []any:
		out, err := toStringSlice(v)
		if err != nil {
			return nil
		}
		return out
	}
	return nil
}
