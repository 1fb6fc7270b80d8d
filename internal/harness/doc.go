// Package harness provides conformance testing for the offline write
// path. A scenario drives the router, connectivity monitor, and sync
// coordinator against a scripted booking server, then asserts on the
// queue, the deliveries, and the dead letters.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	steps:
//	  - network: offline
//	  - submit: { charter_id: "c-7", date: "2026-09-01" }
//	  - server: [error, ok]
//	  - network: online
//	  - replay: true
//	assertions:
//	  - type: queue_count
//	    count: 0
//	  - type: delivered_count
//	    count: 1
//
// # Steps
//
// Each step sets exactly one key:
//
//   - submit: payload map passed to the router as a booking write
//   - network: "online" or "offline", applied to the monitor
//   - server: scripted responses for upcoming submissions, in order;
//     each is "ok", "reject", or "error"; an exhausted script answers ok
//   - replay: run one replay round over the queue
//   - push: payload map delivered as an inbound push event
//   - click: "last" clicks the most recently shown notification
//
// # Assertions
//
//   - queue_count: exactly N writes still queued
//   - dead_letter_count: exactly N dead letters
//   - delivered_count: exactly N server-acknowledged deliveries
//   - delivery_order: deliveries happened in submission order
//   - unique_keys: no idempotency key was delivered twice
//   - notified_count: exactly N notifications were displayed
//
// # Deterministic Execution
//
// Scenarios run against a fresh in-memory SQLite database with a
// deterministic clock and sequential write ids, so the same scenario
// produces a byte-identical trace across runs. Golden files under
// testdata/golden capture those traces; regenerate with
//
//	go test ./internal/harness -update
package harness
