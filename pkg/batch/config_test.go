package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "post", mutate: func(c *Config) { c.Method = "post" }},
		{name: "zero budget", mutate: func(c *Config) { c.RetryBudget = 0 }},
		{name: "zero refill rate", mutate: func(c *Config) { c.RefillRate = 0 }},
		{name: "bad method", mutate: func(c *Config) { c.Method = "PUT" }, wantErr: true},
		{name: "negative budget", mutate: func(c *Config) { c.RetryBudget = -1 }, wantErr: true},
		{name: "zero capacity", mutate: func(c *Config) { c.BucketCapacity = 0 }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.RefillRate = -1 }, wantErr: true},
		{name: "negative deadline", mutate: func(c *Config) { c.Deadline = -time.Second }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.MaxConcurrency = 0 }, wantErr: true},
		{name: "negative pass backoff", mutate: func(c *Config) { c.PassBackoff.Initial = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "", cfg.Method)
	assert.Equal(t, 1, cfg.RetryBudget)
	assert.Equal(t, 10, cfg.BucketCapacity)
	assert.Equal(t, 10.0, cfg.RefillRate)
	assert.Equal(t, 200*time.Millisecond, cfg.Backoff)
	assert.Equal(t, 10, cfg.MaxConcurrency)
	assert.Zero(t, cfg.PassBackoff)
	assert.Zero(t, cfg.Deadline)
}
