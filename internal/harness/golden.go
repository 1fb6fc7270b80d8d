package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/tidewell/moorage/internal/canon"
)

// TraceSnapshot is what a golden file captures for one scenario.
type TraceSnapshot struct {
	ScenarioName    string       `json:"scenario_name"`
	Trace           []TraceEvent `json:"trace"`
	Delivered       []Delivery   `json:"delivered"`
	QueueCount      int          `json:"queue_count"`
	DeadLetterCount int          `json:"dead_letter_count"`
}

// RunWithGolden executes a scenario and compares its trace against the
// golden file testdata/golden/{name}.golden. Regenerate golden files
// with
//
//	go test ./internal/harness -update
//
// The snapshot is serialized as canonical JSON so golden comparison is
// byte-stable across runs and platforms.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	snapshot := TraceSnapshot{
		ScenarioName:    scenario.Name,
		Trace:           result.Trace,
		Delivered:       result.Delivered,
		QueueCount:      result.QueueCount,
		DeadLetterCount: result.DeadLetterCount,
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	canonical, err := canon.Raw(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize snapshot: %w", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, canonical)

	return result, nil
}
