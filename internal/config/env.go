package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvPrefix looks up command line defaults in variables named
// PREFIX_NAME, for example RESOURCED_LOG_LEVEL. Unset and empty
// variables fall back to the supplied default.
type EnvPrefix string

func (p EnvPrefix) lookup(name string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(string(p) + "_" + name))
	return value, value != ""
}

// String returns the variable's value, or def.
func (p EnvPrefix) String(name, def string) string {
	if value, ok := p.lookup(name); ok {
		return value
	}
	return def
}

// Bool parses the variable with strconv.ParseBool and additionally
// accepts yes/on and no/off. Unparsable values yield def.
func (p EnvPrefix) Bool(name string, def bool) bool {
	value, ok := p.lookup(name)
	if !ok {
		return def
	}
	switch strings.ToLower(value) {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return b
}
