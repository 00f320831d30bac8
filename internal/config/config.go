package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/mbheramil/smart-seo-fixer/internal/ratelimit"
)

// ServiceBudget configures one external service's rate window.
type ServiceBudget struct {
	WindowMS int64 `json:"window_ms"`
	MaxCalls int   `json:"max_calls"`
}

type Config struct {
	Driver     string                   `json:"driver"` // sqlite | mongo | memory
	DBPath     string                   `json:"db_path"`
	MongoURI   string                   `json:"mongo_uri,omitempty"`
	ChunkSize  int                      `json:"chunk_size"`
	ChunkSizes map[string]int           `json:"chunk_sizes,omitempty"`
	LeaseSec   int                      `json:"claim_lease_sec"`
	PollMS     int64                    `json:"poll_ms"`
	Services   map[string]ServiceBudget `json:"services"`
}

func Default() *Config {
	return &Config{
		Driver:    "sqlite",
		DBPath:    "seoqueue.db",
		ChunkSize: 5,
		ChunkSizes: map[string]int{
			"ai_fix":          3,
			"schema_regen":    10,
			"analysis":        10,
			"migration_batch": 25,
		},
		LeaseSec: 120,
		PollMS:   500,
		Services: map[string]ServiceBudget{
			"content_gen":      {WindowMS: 60_000, MaxCalls: 20},
			"search_analytics": {WindowMS: 60_000, MaxCalls: 60},
		},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Default(), nil
	}
	defer f.Close()
	c := Default()
	if err := json.NewDecoder(f).Decode(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// Lease returns the claim lease as a duration.
func (c *Config) Lease() time.Duration {
	return time.Duration(c.LeaseSec) * time.Second
}

// Poll returns the runner poll interval as a duration.
func (c *Config) Poll() time.Duration {
	return time.Duration(c.PollMS) * time.Millisecond
}

// BuildLimiter creates a rate limiter loaded with every configured
// service budget.
func (c *Config) BuildLimiter() *ratelimit.Limiter {
	l := ratelimit.New()
	for svc, b := range c.Services {
		l.SetBudget(svc, ratelimit.Budget{
			Window:   time.Duration(b.WindowMS) * time.Millisecond,
			MaxCalls: b.MaxCalls,
		})
	}
	return l
}
