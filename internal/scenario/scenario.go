// Package scenario loads YAML scenarios and replays them against a space,
// checking each step's expectations.
package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/tuplespace/internal/timespec"
)

// Scenario is an ordered list of steps run against one space.
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step holds exactly one action and optional expectations about its outcome.
type Step struct {
	Name    string      `yaml:"name,omitempty"`
	Write   *WriteStep  `yaml:"write,omitempty"`
	Read    *MatchStep  `yaml:"read,omitempty"`
	Take    *MatchStep  `yaml:"take,omitempty"`
	Collect *MatchStep  `yaml:"collect,omitempty"`
	Renew   *RenewStep  `yaml:"renew,omitempty"`
	Cancel  *CancelStep `yaml:"cancel,omitempty"`
	Sleep   string      `yaml:"sleep,omitempty"`
	Harvest bool        `yaml:"harvest,omitempty"`
	Expect  *Expect     `yaml:"expect,omitempty"`
}

// WriteStep writes a tuple. As names the resulting lease for later renew and
// cancel steps.
type WriteStep struct {
	Tag        string         `yaml:"tag"`
	Lease      string         `yaml:"lease,omitempty"`
	Properties map[string]any `yaml:"properties,omitempty"`
	As         string         `yaml:"as,omitempty"`
}

// MatchStep is a read, take or collect. Without a timeout read and take do not
// block.
type MatchStep struct {
	Tag     string         `yaml:"tag"`
	Agent   string         `yaml:"agent,omitempty"`
	Fields  map[string]any `yaml:"fields,omitempty"`
	Timeout string         `yaml:"timeout,omitempty"`
}

// RenewStep renews a named lease.
type RenewStep struct {
	Lease    string `yaml:"lease"`
	Duration string `yaml:"duration"`
}

// CancelStep cancels a named lease.
type CancelStep struct {
	Lease string `yaml:"lease"`
}

// Expect lists the checks applied after a step. Unset fields are not checked.
type Expect struct {
	Found      *bool          `yaml:"found,omitempty"`
	Properties map[string]any `yaml:"properties,omitempty"`
	Count      *int           `yaml:"count,omitempty"`
	OK         *bool          `yaml:"ok,omitempty"`
	Size       *int           `yaml:"size,omitempty"`
	Error      string         `yaml:"error,omitempty"`
}

// Action returns the name of the step's action, or "" when none is set.
func (s *Step) Action() string {
	switch {
	case s.Write != nil:
		return "write"
	case s.Read != nil:
		return "read"
	case s.Take != nil:
		return "take"
	case s.Collect != nil:
		return "collect"
	case s.Renew != nil:
		return "renew"
	case s.Cancel != nil:
		return "cancel"
	case s.Sleep != "":
		return "sleep"
	case s.Harvest:
		return "harvest"
	}
	return ""
}

func (s *Step) actionCount() int {
	n := 0
	for _, set := range []bool{
		s.Write != nil, s.Read != nil, s.Take != nil, s.Collect != nil,
		s.Renew != nil, s.Cancel != nil, s.Sleep != "", s.Harvest,
	} {
		if set {
			n++
		}
	}
	return n
}

// Label identifies the step in reports.
func (s *Step) Label(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("step %d (%s)", index+1, s.Action())
}

// Validate checks the scenario structure without running it.
func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("scenario has no steps")
	}

	leases := make(map[string]bool)
	for i := range sc.Steps {
		step := &sc.Steps[i]
		if err := step.validate(leases); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

func (s *Step) validate(leases map[string]bool) error {
	if n := s.actionCount(); n != 1 {
		return fmt.Errorf("exactly one action is required, got %d", n)
	}

	switch {
	case s.Write != nil:
		if s.Write.Tag == "" {
			return fmt.Errorf("write.tag is required")
		}
		if s.Write.Lease != "" {
			if _, err := timespec.ParseLease(s.Write.Lease); err != nil {
				return fmt.Errorf("write.lease: %w", err)
			}
		}
		if s.Write.As != "" {
			leases[s.Write.As] = true
		}
	case s.Read != nil:
		return s.Read.validate("read")
	case s.Take != nil:
		return s.Take.validate("take")
	case s.Collect != nil:
		if s.Collect.Timeout != "" {
			return fmt.Errorf("collect does not take a timeout")
		}
		return s.Collect.validate("collect")
	case s.Renew != nil:
		if !leases[s.Renew.Lease] {
			return fmt.Errorf("renew.lease '%s' does not name an earlier write", s.Renew.Lease)
		}
		if _, err := timespec.ParseLease(s.Renew.Duration); err != nil {
			return fmt.Errorf("renew.duration: %w", err)
		}
	case s.Cancel != nil:
		if !leases[s.Cancel.Lease] {
			return fmt.Errorf("cancel.lease '%s' does not name an earlier write", s.Cancel.Lease)
		}
	case s.Sleep != "":
		d, err := time.ParseDuration(s.Sleep)
		if err != nil {
			return fmt.Errorf("sleep: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("sleep must not be negative")
		}
	}
	return nil
}

func (m *MatchStep) validate(action string) error {
	if m.Tag == "" {
		return fmt.Errorf("%s.tag is required", action)
	}
	if m.Timeout != "" {
		d, err := time.ParseDuration(m.Timeout)
		if err != nil {
			return fmt.Errorf("%s.timeout: %w", action, err)
		}
		if d < 0 {
			return fmt.Errorf("%s.timeout must not be negative", action)
		}
	}
	return nil
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = path
	}
	return sc, nil
}
