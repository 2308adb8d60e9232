package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvPrefix_String(t *testing.T) {
	env := EnvPrefix("RESOURCESYNC_TEST")
	t.Setenv("RESOURCESYNC_TEST_SET", "env-value")
	t.Setenv("RESOURCESYNC_TEST_EMPTY", "")
	t.Setenv("RESOURCESYNC_TEST_BLANK", "   ")

	assert.Equal(t, "env-value", env.String("SET", "default"))
	assert.Equal(t, "default", env.String("EMPTY", "default"))
	assert.Equal(t, "default", env.String("BLANK", "default"))
	assert.Equal(t, "default", env.String("UNSET", "default"))
}

func TestEnvPrefix_Bool(t *testing.T) {
	tests := []struct {
		value    string
		def      bool
		expected bool
	}{
		{value: "true", expected: true},
		{value: "YES", expected: true},
		{value: "1", expected: true},
		{value: "T", expected: true},
		{value: "On", expected: true},
		{value: "off", def: true, expected: false},
		{value: "0", def: true, expected: false},
		{value: "FALSE", def: true, expected: false},
		{value: "maybe", def: true, expected: true},
		{value: "maybe", expected: false},
		{value: "", def: true, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("RESOURCESYNC_TEST_BOOL", tt.value)
			assert.Equal(t, tt.expected, EnvPrefix("RESOURCESYNC_TEST").Bool("BOOL", tt.def))
		})
	}
}
