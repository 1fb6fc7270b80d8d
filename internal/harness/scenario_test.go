package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	path := writeScenario(t, `
name: offline-single-write
description: "One write queued offline and replayed"
steps:
  - network: offline
  - submit:
      charter_id: c-1
  - network: online
  - replay: true
assertions:
  - type: queue_count
    count: 0
  - type: delivered_count
    count: 1
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "offline-single-write", scenario.Name)
	assert.Len(t, scenario.Steps, 4)
	assert.Equal(t, "offline", scenario.Steps[0].Network)
	assert.Equal(t, "c-1", scenario.Steps[1].Submit["charter_id"])
	assert.True(t, scenario.Steps[3].Replay)
	require.Len(t, scenario.Assertions, 2)
	assert.Equal(t, AssertQueueCount, scenario.Assertions[0].Type)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read scenario")
}

func TestLoadScenarioUnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "typo in a step key"
steps:
  - nettwork: offline
assertions:
  - type: queue_count
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse scenario")
}

func TestLoadScenarioValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "no name"
steps:
  - replay: true
assertions:
  - type: queue_count
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: no-description
steps:
  - replay: true
assertions:
  - type: queue_count
`,
			wantErr: "description is required",
		},
		{
			name: "no steps",
			content: `
name: empty
description: "no steps"
assertions:
  - type: queue_count
`,
			wantErr: "steps list is required",
		},
		{
			name: "no assertions",
			content: `
name: unasserted
description: "no assertions"
steps:
  - replay: true
`,
			wantErr: "assertions list is required",
		},
		{
			name: "bad network value",
			content: `
name: bad-network
description: "invalid network state"
steps:
  - network: flaky
assertions:
  - type: queue_count
`,
			wantErr: `network must be "online" or "offline"`,
		},
		{
			name: "bad server response",
			content: `
name: bad-server
description: "unknown scripted response"
steps:
  - server: [ok, maybe]
assertions:
  - type: queue_count
`,
			wantErr: "unknown server response",
		},
		{
			name: "two fields in one step",
			content: `
name: overloaded-step
description: "step sets two actions"
steps:
  - network: offline
    replay: true
assertions:
  - type: queue_count
`,
			wantErr: "exactly one of",
		},
		{
			name: "bad click target",
			content: `
name: bad-click
description: "click only supports last"
steps:
  - click: first
assertions:
  - type: notified_count
`,
			wantErr: `click only supports "last"`,
		},
		{
			name: "unknown assertion type",
			content: `
name: bad-assertion
description: "unknown assertion"
steps:
  - replay: true
assertions:
  - type: vibes
`,
			wantErr: "unknown assertion type",
		},
		{
			name: "missing assertion type",
			content: `
name: typeless-assertion
description: "assertion without a type"
steps:
  - replay: true
assertions:
  - count: 3
`,
			wantErr: "type is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeScenario(t, tc.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
