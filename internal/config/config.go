// Package config layers the server configuration from TOML file,
// environment, and CLI flags.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cattern/rovercam/internal/logging"
)

// envPrefix namespaces the environment overrides.
const envPrefix = "ROVERCAM_"

// Load fills opts with precedence CLI flags > environment > TOML file.
// Flags the user explicitly set on the command line are never
// overwritten. opts must be a pointer to a struct whose fields carry
// `toml` and `env` tags; a field named Config holds the TOML file path.
func Load(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	changed := changedFlags(cmd)

	if path := configPath(v, t); path != "" {
		if err := applyTOML(v, t, path, changed); err != nil {
			return err
		}
	}
	applyEnv(v, t, changed)
	return nil
}

// changedFlags collects the flag names the user set explicitly.
func changedFlags(cmd *cobra.Command) map[string]bool {
	out := make(map[string]bool)
	if cmd == nil {
		return out
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			out[f.Name] = true
		}
	})
	return out
}

func configPath(v reflect.Value, t reflect.Type) string {
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Name == "Config" {
			return v.Field(i).String()
		}
	}
	return ""
}

func applyTOML(v reflect.Value, t reflect.Type, path string, changed map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		// A missing config file is fine; defaults and env still apply.
		return nil
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	for i := 0; i < v.NumField(); i++ {
		ft := t.Field(i)
		if changed[flagName(ft.Name)] {
			continue
		}
		key := ft.Tag.Get("toml")
		if key == "" {
			continue
		}
		if value := lookupDotted(doc, key); value != nil {
			setField(v.Field(i), value)
		}
	}
	return nil
}

func applyEnv(v reflect.Value, t reflect.Type, changed map[string]bool) {
	for i := 0; i < v.NumField(); i++ {
		ft := t.Field(i)
		if changed[flagName(ft.Name)] {
			continue
		}
		key := ft.Tag.Get("env")
		if key == "" {
			continue
		}
		if value := os.Getenv(envPrefix + key); value != "" {
			setFieldString(v.Field(i), value)
		}
	}
}

// flagName converts a struct field name to its CLI flag spelling.
// "LoggingLevel" becomes "logging-level".
func flagName(field string) string {
	var out []rune
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			out = append(out, '-')
		}
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

// lookupDotted resolves "server.port" style paths in a parsed TOML map.
func lookupDotted(doc map[string]any, path string) any {
	parts := strings.Split(path, ".")
	cur := doc
	for i, part := range parts {
		if i == len(parts)-1 {
			return cur[part]
		}
		next, ok := cur[part].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return nil
}

func setField(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		arr, ok := value.([]any)
		if !ok {
			return
		}
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		field.Set(reflect.ValueOf(out))
	}
}

func setFieldString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(value, ",")
		out := make([]string, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		field.Set(reflect.ValueOf(out))
	}
}

// LoadLogging reads the [logging] table from the TOML config. Keys
// other than level and format are per-module level overrides. Missing
// or unparsable files yield the defaults.
func LoadLogging(path string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if path == "" {
		return cfg
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging map[string]string `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	for key, value := range raw.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg
}
