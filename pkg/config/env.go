package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// envRefPattern matches ${VAR}, ${VAR:-default}, and bare $VAR references.
var envRefPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(?::-([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// expandEnvVars substitutes environment references in a string. An unset
// variable expands to its :-default when present, otherwise to empty.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return envRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envRefPattern.FindStringSubmatch(match)
		name, fallback := groups[1], groups[2]
		if name == "" {
			name = groups[3]
		}
		if val := os.Getenv(name); val != "" {
			return val
		}
		return fallback
	})
}

// parseValue re-types an expanded scalar so "8080" stays an int and
// "true" a bool after substitution into the YAML tree.
func parseValue(value string) interface{} {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// expandEnvVarsInData walks a parsed YAML tree and expands environment
// references in every string value.
func expandEnvVarsInData(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		if expanded := expandEnvVars(v); expanded != v {
			return parseValue(expanded)
		}
		return v
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			out[key] = expandEnvVarsInData(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = expandEnvVarsInData(item)
		}
		return out
	default:
		return v
	}
}

// LoadEnvFiles loads .env.local then .env from the working directory.
// Missing files are fine; a malformed file is not.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}
