package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// GetByPath returns the value at a dot-notation path (e.g. "settings.provider").
// A section path such as "gateway" returns the whole section.
func GetByPath(cfg *Config, path string) (any, error) {
	v, err := lookup(cfg, path)
	if err != nil {
		return nil, err
	}
	if v.Kind() == reflect.Struct {
		return v.Interface(), nil
	}
	return leafValue(v), nil
}

// SetByPath sets the leaf at path. value is converted to the type of the
// target field; a string is parsed for bool and integer fields. The config
// is not validated; callers run Validate before saving.
func SetByPath(cfg *Config, path string, value any) error {
	v, err := lookup(cfg, path)
	if err != nil {
		return err
	}
	if v.Kind() == reflect.Struct {
		return fmt.Errorf("%s is a section; set one of its keys", path)
	}

	s, ok := value.(string)
	if !ok {
		s = fmt.Sprint(value)
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%s expects true or false, got %q", path, s)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("%s expects an integer, got %q", path, s)
		}
		v.SetInt(n)
	default:
		return fmt.Errorf("%s has unsupported type %s", path, v.Type())
	}
	return nil
}

// lookup walks cfg by json tag names.
func lookup(cfg *Config, path string) (reflect.Value, error) {
	if strings.TrimSpace(path) == "" {
		return reflect.Value{}, fmt.Errorf("empty path")
	}
	v := reflect.ValueOf(cfg).Elem()
	for _, key := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("key not found: %s", path)
		}
		f, ok := fieldByTag(v, key)
		if !ok {
			return reflect.Value{}, fmt.Errorf("key not found: %s", path)
		}
		v = f
	}
	return v, nil
}

func fieldByTag(v reflect.Value, key string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tagName(t.Field(i)) == key {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tagName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

// leafValue strips named types (domain.ProviderKind) down to string, bool or int.
func leafValue(v reflect.Value) any {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(v.Int())
	default:
		return v.Interface()
	}
}

// Sanitize returns a copy of the config with API keys masked.
func Sanitize(cfg *Config) *Config {
	cp := *cfg
	if cp.Settings.GeminiAPIKey != "" {
		cp.Settings.GeminiAPIKey = maskString(cp.Settings.GeminiAPIKey)
	}
	if cp.Settings.OpenAIAPIKey != "" {
		cp.Settings.OpenAIAPIKey = maskString(cp.Settings.OpenAIAPIKey)
	}
	return &cp
}

// MaskSecret masks a credential for display.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	return maskString(s)
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every settable path with its current value, including
// fields that are empty and omitted from the file.
func ListPaths(cfg *Config) map[string]any {
	result := make(map[string]any)
	collectPaths("", reflect.ValueOf(cfg).Elem(), result)
	return result
}

func collectPaths(prefix string, v reflect.Value, result map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		path := tagName(t.Field(i))
		if prefix != "" {
			path = prefix + "." + path
		}
		f := v.Field(i)
		if f.Kind() == reflect.Struct {
			collectPaths(path, f, result)
			continue
		}
		result[path] = leafValue(f)
	}
}
