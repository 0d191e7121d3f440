package ratelimit

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Rule is a request budget per window.
type Rule struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// Validate checks the rule is usable.
func (r Rule) Validate() error {
	if r.Limit <= 0 {
		return errors.New("limit must be greater than 0")
	}
	if r.Window <= 0 {
		return errors.New("window must be greater than 0")
	}
	return nil
}

// Rules holds the per-route budgets applied at the edge.
// Login and signup are tighter than general API traffic.
type Rules struct {
	Login  Rule `yaml:"login"`
	Signup Rule `yaml:"signup"`
	API    Rule `yaml:"api"`
}

// DefaultRules returns 5/min for login, 3/min for signup and 60/min for the rest of the API.
func DefaultRules() Rules {
	return Rules{
		Login:  Rule{Limit: 5, Window: time.Minute},
		Signup: Rule{Limit: 3, Window: time.Minute},
		API:    Rule{Limit: 60, Window: time.Minute},
	}
}

// Validate checks every rule.
func (r Rules) Validate() error {
	if err := r.Login.Validate(); err != nil {
		return fmt.Errorf("login rule: %w", err)
	}
	if err := r.Signup.Validate(); err != nil {
		return fmt.Errorf("signup rule: %w", err)
	}
	if err := r.API.Validate(); err != nil {
		return fmt.Errorf("api rule: %w", err)
	}
	return nil
}

// LoadRules reads rules from a YAML file. Rules missing from the file keep their defaults.
//
//	login:
//	  limit: 5
//	  window: 1m
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("failed to read rate limit rules: %w", err)
	}

	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("failed to parse rate limit rules: %w", err)
	}

	if err := rules.Validate(); err != nil {
		return rules, fmt.Errorf("invalid rate limit rules: %w", err)
	}

	return rules, nil
}
