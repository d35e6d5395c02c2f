package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

// SeedFile is the YAML layout of a rule seed file.
type SeedFile struct {
	Rules []SeedRule `yaml:"rules"`
}

// SeedRule is one rule with its actions.
type SeedRule struct {
	Name                   string       `yaml:"name"`
	Description            string       `yaml:"description,omitempty"`
	Enabled                *bool        `yaml:"enabled,omitempty"`
	LogType                string       `yaml:"log_type,omitempty"`
	PatternType            string       `yaml:"pattern_type"`
	PatternValue           string       `yaml:"pattern_value"`
	ThresholdCount         *int         `yaml:"threshold_count,omitempty"`
	ThresholdWindowMinutes *int         `yaml:"threshold_window_minutes,omitempty"`
	Actions                []SeedAction `yaml:"actions,omitempty"`
}

// SeedAction is an action nested under a seed rule.
type SeedAction struct {
	Type    string         `yaml:"type"`
	Enabled *bool          `yaml:"enabled,omitempty"`
	Config  map[string]any `yaml:"config"`
}

// ConfigValidator checks channel configuration for an action kind.
type ConfigValidator interface {
	ValidateConfig(kind models.ActionKind, config json.RawMessage) error
}

// RuleWriter stores seeded rules.
type RuleWriter interface {
	Create(ctx context.Context, rule *models.MonitoringRule) error
}

// ActionWriter stores seeded actions.
type ActionWriter interface {
	Create(ctx context.Context, action *models.Action) error
}

// Seed is a validated seed file ready to be stored.
type Seed struct {
	Rules   []*models.MonitoringRule
	Actions map[string][]*models.Action // by rule id
}

// LoadSeedFromFile loads a seed file from disk.
func LoadSeedFromFile(path string, validator ConfigValidator) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	return LoadSeed(f, validator)
}

// LoadSeed parses and validates a seed file. validator may be nil to skip
// channel configuration checks.
func LoadSeed(r io.Reader, validator ConfigValidator) (*Seed, error) {
	var file SeedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}

	now := time.Now().UTC()
	seed := &Seed{Actions: make(map[string][]*models.Action)}
	for i, sr := range file.Rules {
		rule := &models.MonitoringRule{
			ID:                     uuid.New().String(),
			Name:                   sr.Name,
			Description:            sr.Description,
			Enabled:                enabledOr(sr.Enabled),
			LogKind:                models.LogKind(sr.LogType),
			PatternKind:            models.PatternKind(sr.PatternType),
			Pattern:                sr.PatternValue,
			ThresholdCount:         sr.ThresholdCount,
			ThresholdWindowMinutes: sr.ThresholdWindowMinutes,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if err := ValidateRule(rule); err != nil {
			return nil, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}

		for j, sa := range sr.Actions {
			cfg, err := json.Marshal(sa.Config)
			if err != nil {
				return nil, fmt.Errorf("rule %q action %d: encode config: %w", sr.Name, j, err)
			}
			action := &models.Action{
				ID:        uuid.New().String(),
				RuleID:    rule.ID,
				Kind:      models.ActionKind(sa.Type),
				Enabled:   enabledOr(sa.Enabled),
				Config:    cfg,
				CreatedAt: now.Add(time.Duration(j) * time.Microsecond),
			}
			if validator != nil {
				if err := validator.ValidateConfig(action.Kind, action.Config); err != nil {
					return nil, fmt.Errorf("rule %q action %d: %w", sr.Name, j, err)
				}
			}
			seed.Actions[rule.ID] = append(seed.Actions[rule.ID], action)
		}
		seed.Rules = append(seed.Rules, rule)
	}
	return seed, nil
}

// Apply stores every rule and its actions.
func (s *Seed) Apply(ctx context.Context, rules RuleWriter, actions ActionWriter) error {
	for _, rule := range s.Rules {
		if err := rules.Create(ctx, rule); err != nil {
			return fmt.Errorf("create rule %q: %w", rule.Name, err)
		}
		for _, a := range s.Actions[rule.ID] {
			if err := actions.Create(ctx, a); err != nil {
				return fmt.Errorf("create action for rule %q: %w", rule.Name, err)
			}
		}
	}
	return nil
}

func enabledOr(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}
