package stage

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/envutil"
	"github.com/HMarcusWH/company-truth-weave-sub000/internal/pkg/logger"
)

// Stage names, in pipeline order.
const (
	Extraction    = "extraction"
	Normalization = "normalization"
	Validation    = "validation"
	Policy        = "policy"
)

// Order is the fixed stage sequence the orchestrator walks.
var Order = []string{Extraction, Normalization, Validation, Policy}

// Endpoint is one external stage service.
type Endpoint struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	AuthToken      string `yaml:"auth_token"`
}

// Registry maps stage names to their endpoints.
type Registry struct {
	Stages map[string]Endpoint `yaml:"stages"`
}

func (r Registry) Endpoint(name string) (Endpoint, bool) {
	ep, ok := r.Stages[name]
	return ep, ok
}

func (e Endpoint) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// LoadRegistry reads the YAML stage registry at path. When path is empty it
// falls back to <STAGE>_AGENT_URL env vars so local setups need no file.
func LoadRegistry(path string, log *logger.Logger) (Registry, error) {
	if strings.TrimSpace(path) == "" {
		return registryFromEnv(log), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, fmt.Errorf("read stage registry: %w", err)
	}
	var reg Registry
	if err := yaml.Unmarshal(raw, &reg); err != nil {
		return Registry{}, fmt.Errorf("parse stage registry: %w", err)
	}
	for _, name := range Order {
		if ep, ok := reg.Stages[name]; !ok || strings.TrimSpace(ep.URL) == "" {
			return Registry{}, fmt.Errorf("stage registry missing %q", name)
		}
	}
	return reg, nil
}

func registryFromEnv(log *logger.Logger) Registry {
	reg := Registry{Stages: map[string]Endpoint{}}
	for _, name := range Order {
		key := strings.ToUpper(name) + "_AGENT_URL"
		url := envutil.GetEnv(key, "", log)
		if url == "" {
			continue
		}
		reg.Stages[name] = Endpoint{
			URL:            url,
			TimeoutSeconds: envutil.GetEnvAsInt(strings.ToUpper(name)+"_AGENT_TIMEOUT", 30, log),
			AuthToken:      envutil.GetEnv(strings.ToUpper(name)+"_AGENT_TOKEN", "", log),
		}
	}
	return reg
}
