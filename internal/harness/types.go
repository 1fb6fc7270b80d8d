package harness

// TraceEvent is one entry in the scenario trace. Exactly the fields
// relevant to the step type are set, so golden files stay readable.
type TraceEvent struct {
	Type string `json:"type"`

	// submit
	WriteID string `json:"write_id,omitempty"`
	Outcome string `json:"outcome,omitempty"` // "direct", "queued", "rejected"

	// network
	State string `json:"state,omitempty"`

	// replay
	Delivered    int  `json:"delivered,omitempty"`
	DeadLettered int  `json:"dead_lettered,omitempty"`
	Remaining    int  `json:"remaining,omitempty"`
	Stopped      bool `json:"stopped,omitempty"`

	// push / click
	NotificationID string `json:"notification_id,omitempty"`
	Dropped        bool   `json:"dropped,omitempty"`
	Target         string `json:"target,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace lists what happened, in order. Compared against golden files.
	Trace []TraceEvent `json:"trace"`

	// Errors holds assertion failure messages; empty when Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Delivered lists server-acknowledged submissions in delivery order.
	Delivered []Delivery `json:"delivered"`

	// Submitted lists write ids in submission order.
	Submitted []string `json:"submitted"`

	// QueueCount and DeadLetterCount are the final table cardinalities.
	QueueCount      int `json:"queue_count"`
	DeadLetterCount int `json:"dead_letter_count"`

	// Notified lists displayed notification ids in display order.
	Notified []string `json:"notified"`
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}
