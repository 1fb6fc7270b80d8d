package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance scenario: a sequence of steps driven
// through the real components, then assertions over the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario; also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final queue, deliveries, and dead letters.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario step. Exactly one field must be set.
type Step struct {
	// Submit passes a booking payload to the router.
	Submit map[string]interface{} `yaml:"submit,omitempty"`

	// Network flips the monitor: "online" or "offline".
	Network string `yaml:"network,omitempty"`

	// Server scripts the next server responses in order; each entry is
	// "ok", "reject", or "error".
	Server []string `yaml:"server,omitempty"`

	// Replay runs one replay round when true.
	Replay bool `yaml:"replay,omitempty"`

	// Push delivers a payload as an inbound push event.
	Push map[string]interface{} `yaml:"push,omitempty"`

	// Click clicks a displayed notification; "last" targets the most
	// recently shown one.
	Click string `yaml:"click,omitempty"`
}

// Assertion validates one aspect of the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Count is the expected cardinality for the counting assertions.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertQueueCount      = "queue_count"
	AssertDeadLetterCount = "dead_letter_count"
	AssertDeliveredCount  = "delivered_count"
	AssertDeliveryOrder   = "delivery_order"
	AssertUniqueKeys      = "unique_keys"
	AssertNotifiedCount   = "notified_count"
)

// Server response script values.
const (
	RespondOK     = "ok"
	RespondReject = "reject"
	RespondError  = "error"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so a typo fails loudly instead of silently skipping a step.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	set := 0
	if step.Submit != nil {
		set++
	}
	if step.Network != "" {
		set++
		if step.Network != "online" && step.Network != "offline" {
			return fmt.Errorf("steps[%d]: network must be \"online\" or \"offline\", got %q", index, step.Network)
		}
	}
	if step.Server != nil {
		set++
		for _, resp := range step.Server {
			switch resp {
			case RespondOK, RespondReject, RespondError:
			default:
				return fmt.Errorf("steps[%d]: unknown server response %q", index, resp)
			}
		}
	}
	if step.Replay {
		set++
	}
	if step.Push != nil {
		set++
	}
	if step.Click != "" {
		set++
		if step.Click != "last" {
			return fmt.Errorf("steps[%d]: click only supports \"last\", got %q", index, step.Click)
		}
	}

	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of submit/network/server/replay/push/click must be set", index)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertQueueCount, AssertDeadLetterCount, AssertDeliveredCount, AssertNotifiedCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertDeliveryOrder, AssertUniqueKeys:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
