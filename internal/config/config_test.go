package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvParsers(t *testing.T) {
	t.Setenv("KYD_TEST_INT", "42")
	t.Setenv("KYD_TEST_FLOAT", "0.5")
	t.Setenv("KYD_TEST_BOOL", "false")
	t.Setenv("KYD_TEST_DUR", "90s")

	n, err := envInt("KYD_TEST_INT", 0)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	f, err := envFloat("KYD_TEST_FLOAT", 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f, 1e-9)

	b, err := envBool("KYD_TEST_BOOL", true)
	require.NoError(t, err)
	assert.False(t, b)

	d, err := envDuration("KYD_TEST_DUR", 0)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	n, err = envInt("KYD_TEST_UNSET", 99)
	require.NoError(t, err)
	assert.Equal(t, 99, n, "unset falls back to the default")
}

func TestEnvParserErrors(t *testing.T) {
	tests := []struct {
		name  string
		value string
		parse func(key string) error
		want  string
	}{
		{"int", "abc", func(k string) error { _, err := envInt(k, 0); return err }, `KYD_TEST_BAD="abc" is not a valid integer`},
		{"float", "fast", func(k string) error { _, err := envFloat(k, 0); return err }, `KYD_TEST_BAD="fast" is not a valid number`},
		{"bool", "maybe", func(k string) error { _, err := envBool(k, false); return err }, `KYD_TEST_BAD="maybe" is not a valid boolean`},
		{"duration", "five-seconds", func(k string) error { _, err := envDuration(k, 0); return err }, `KYD_TEST_BAD="five-seconds" is not a valid duration`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("KYD_TEST_BAD", tt.value)
			assert.EqualError(t, tt.parse("KYD_TEST_BAD"), tt.want)
		})
	}
}

func TestEnvListTrimsAndDropsEmpty(t *testing.T) {
	t.Setenv("KYD_TEST_LIST", " https://a.example , ,https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, envList("KYD_TEST_LIST"))
	assert.Nil(t, envList("KYD_TEST_LIST_UNSET"))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KYD_AGENT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, 60*time.Second, cfg.CallTimeout)
	assert.Equal(t, 3, cfg.CallRetries)
	assert.Equal(t, "gpt-4.1-nano", cfg.ModelSmall)
	assert.Equal(t, "o3", cfg.ModelReasoning)
	assert.True(t, cfg.RateLimitEnable)
	assert.InDelta(t, 0.2, cfg.RateLimitRPS, 1e-9)
	assert.Equal(t, 30*time.Minute, cfg.AgentIdleTTL)
	assert.Empty(t, cfg.AgentURL)
}

func TestLoadReportsEveryBadVariable(t *testing.T) {
	t.Setenv("KYD_AGENT_SECRET", "s3cret")
	t.Setenv("KYD_PORT", "abc")
	t.Setenv("KYD_CALL_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `KYD_PORT="abc"`)
	assert.Contains(t, err.Error(), `KYD_CALL_TIMEOUT="soon"`)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{"KYD_AGENT_SECRET": ""}, "KYD_AGENT_SECRET"},
		{"unknown store", map[string]string{"KYD_AGENT_SECRET": "s", "KYD_STORE": "mongo"}, "KYD_STORE"},
		{"negative retries", map[string]string{"KYD_AGENT_SECRET": "s", "KYD_CALL_RETRIES": "-1"}, "KYD_CALL_RETRIES"},
		{"zero inbound rate", map[string]string{"KYD_AGENT_SECRET": "s", "KYD_RATE_LIMIT_RPS": "0"}, "KYD_RATE_LIMIT_RPS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDisabledLimiterIgnoresRate(t *testing.T) {
	t.Setenv("KYD_AGENT_SECRET", "s")
	t.Setenv("KYD_RATE_LIMIT_ENABLED", "false")
	t.Setenv("KYD_RATE_LIMIT_RPS", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.RateLimitEnable)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Port:                8080,
		Store:               StoreSQLite,
		SQLitePath:          "kyd.db",
		AgentSecret:         "s",
		MaxRequestBodyBytes: 1024,
		CallTimeout:         time.Second,
		GitHubRPS:           1,
		GitHubBurst:         1,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero body limit", func(c *Config) { c.MaxRequestBodyBytes = 0 }},
		{"postgres without url", func(c *Config) { c.Store = StorePostgres; c.DatabaseURL = "" }},
		{"sqlite without path", func(c *Config) { c.SQLitePath = "" }},
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"zero call timeout", func(c *Config) { c.CallTimeout = 0 }},
		{"zero github burst", func(c *Config) { c.GitHubBurst = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.modify(&c)
			assert.Error(t, c.Validate())
		})
	}
}
