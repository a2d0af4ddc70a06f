package pipeline

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// providerPolicy is the per-provider retry tuning loaded from the policy
// file. Zero values fall back to the default policy.
type providerPolicy struct {
	MaxAttempts    int             `yaml:"max_attempts"`
	BackoffSeconds []int           `yaml:"backoff_seconds"`
	Retryable      map[string]bool `yaml:"retryable"`
}

// policyFile is the on-disk shape of the retry policy document
type policyFile struct {
	Default   providerPolicy            `yaml:"default"`
	Providers map[string]providerPolicy `yaml:"providers"`
}

// Policy decides whether and when a classified failure is retried, per
// provider and error code. Policy-blocked codes are pinned non-retryable
// and no file override can raise them.
type Policy struct {
	def       providerPolicy
	providers map[string]providerPolicy
	logger    arbor.ILogger
}

// DefaultPolicy returns the built-in policy used when no file is configured
func DefaultPolicy(logger arbor.ILogger) *Policy {
	return &Policy{
		def: providerPolicy{
			MaxAttempts:    3,
			BackoffSeconds: []int{30, 120, 600},
		},
		providers: map[string]providerPolicy{},
		logger:    logger,
	}
}

// LoadPolicy reads the YAML retry policy file. An empty path returns the
// built-in defaults.
func LoadPolicy(path string, logger arbor.ILogger) (*Policy, error) {
	policy := DefaultPolicy(logger)
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	if file.Default.MaxAttempts > 0 {
		policy.def.MaxAttempts = file.Default.MaxAttempts
	}
	if len(file.Default.BackoffSeconds) > 0 {
		policy.def.BackoffSeconds = file.Default.BackoffSeconds
	}
	if file.Default.Retryable != nil {
		policy.def.Retryable = file.Default.Retryable
	}
	if file.Providers != nil {
		policy.providers = file.Providers
	}

	logger.Info().
		Str("path", path).
		Int("providers", len(policy.providers)).
		Msg("Retry policy loaded")

	return policy, nil
}

// Retryable decides whether the code is retryable for the provider
func (p *Policy) Retryable(provider models.Provider, code models.ErrorCode) bool {
	if code.PolicyBlocked() {
		return false
	}

	if pp, ok := p.providers[string(provider)]; ok && pp.Retryable != nil {
		if v, ok := pp.Retryable[string(code)]; ok {
			return v
		}
	}
	if p.def.Retryable != nil {
		if v, ok := p.def.Retryable[string(code)]; ok {
			return v
		}
	}
	return models.DefaultRetryable(code)
}

// MaxAttempts returns the attempt ceiling for the provider
func (p *Policy) MaxAttempts(provider models.Provider) int {
	if pp, ok := p.providers[string(provider)]; ok && pp.MaxAttempts > 0 {
		return pp.MaxAttempts
	}
	return p.def.MaxAttempts
}

// BackoffSeconds returns the delay before redelivering attempt n (1-based).
// Attempts past the end of the schedule reuse the last entry.
func (p *Policy) BackoffSeconds(provider models.Provider, attempt int) int {
	schedule := p.def.BackoffSeconds
	if pp, ok := p.providers[string(provider)]; ok && len(pp.BackoffSeconds) > 0 {
		schedule = pp.BackoffSeconds
	}
	if len(schedule) == 0 {
		return 60
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[attempt-1]
}
