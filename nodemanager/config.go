// Package nodemanager implements the client-side load balancer that
// fronts a fleet of homogeneous alloyclient.Client backends: the
// inventory cache, the refresh strategy, the in-flight accounting
// (including streaming lifetimes), the scoring function, and the
// aggregation of per-node inventories into one combined view.
package nodemanager

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alloyai/alloy-nodemanager/alloyclient"
	"github.com/alloyai/alloy-nodemanager/internal/metrics"
)

// Mode selects how aggressively the Selector refreshes node inventories
// before picking a candidate.
type Mode string

const (
	// LocalOnly never refreshes during selection; it trusts whatever is
	// already cached.
	LocalOnly Mode = "local_only"
	// QueryEverytime refreshes every candidate node before picking.
	QueryEverytime Mode = "query_everytime"
	// ControlledQuerying refreshes only the cheapest-looking
	// MaxNodesToQuery candidates before picking.
	ControlledQuerying Mode = "controlled_querying"
)

func (m Mode) valid() bool {
	switch m {
	case LocalOnly, QueryEverytime, ControlledQuerying:
		return true
	default:
		return false
	}
}

// NodeConfig describes one backend to add to the fleet.
type NodeConfig struct {
	BaseURL string  `yaml:"base_url"`
	Name    string  `yaml:"name,omitempty"`
	Weight  float64 `yaml:"weight,omitempty"`
}

// Config is the full set of construction arguments for a Manager.
type Config struct {
	Nodes            []NodeConfig
	TimeoutS         float64
	Mode             Mode
	MaxNodesToQuery  int
	StrictInit       bool
	// ClientFactory, when set, builds the alloyclient.Client for one
	// node instead of the manager constructing its own HTTPClient. This
	// lets callers inject an authenticated or instrumented client, or a
	// fake for tests, per spec.md §9's open question on client injection.
	ClientFactory func(cfg NodeConfig, timeout time.Duration) alloyclient.Client

	// Logger receives dispatch, refresh, and selection diagnostics. A
	// discarding logger is used if nil.
	Logger *slog.Logger
	// Metrics records dispatch/refresh/selection instrumentation. A
	// no-op recorder is used if nil.
	Metrics *metrics.Recorder
}

// DefaultConfig returns a Config with every default from spec.md §4.1 applied.
func DefaultConfig() Config {
	return Config{
		TimeoutS:        300,
		Mode:            ControlledQuerying,
		MaxNodesToQuery: 2,
		StrictInit:      false,
	}
}

// FlagPointers holds pointers to flag values for manager configuration.
type FlagPointers struct {
	timeoutS        *float64
	mode            *string
	maxNodesToQuery *int
	strictInit      *bool
	nodesFile       *string
}

// RegisterFlags registers manager configuration flags, mirroring the
// env-var-then-flag-default convention used throughout the fleet's
// other services.
func RegisterFlags() *FlagPointers {
	return &FlagPointers{
		timeoutS: flag.Float64("alloy-timeout-s", getEnvFloat("ALLOY_TIMEOUT_S", 300),
			"Default per-call timeout in seconds"),
		mode: flag.String("alloy-mode", getEnv("ALLOY_MODE", string(ControlledQuerying)),
			"Node query mode: local_only, query_everytime, controlled_querying"),
		maxNodesToQuery: flag.Int("alloy-max-nodes-to-query", getEnvInt("ALLOY_MAX_NODES_TO_QUERY", 2),
			"Max candidate nodes refreshed under controlled_querying"),
		strictInit: flag.Bool("alloy-strict-init", getEnvBool("ALLOY_STRICT_INIT", false),
			"Fail construction if any node errors during the initial refresh"),
		nodesFile: flag.String("alloy-nodes-file", getEnv("ALLOY_NODES_FILE", ""),
			"YAML file listing nodes: [{base_url, name, weight}, ...]"),
	}
}

// ToConfig converts flag pointers to a Config. Must be called after flag.Parse().
func (f *FlagPointers) ToConfig() (Config, error) {
	cfg := Config{
		TimeoutS:        *f.timeoutS,
		Mode:            Mode(*f.mode),
		MaxNodesToQuery: *f.maxNodesToQuery,
		StrictInit:      *f.strictInit,
	}
	if *f.nodesFile != "" {
		nodes, err := loadNodesFile(*f.nodesFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Nodes = nodes
	}
	return cfg, nil
}

func loadNodesFile(path string) ([]NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nodemanager: reading nodes file %s: %w", path, err)
	}
	var nodes []NodeConfig
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("nodemanager: parsing nodes file %s: %w", path, err)
	}
	return nodes, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}
