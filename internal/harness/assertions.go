package harness

import "fmt"

// EvaluateAssertions checks every assertion against the result, adding
// an error per failure. All assertions are evaluated even after one
// fails, so a broken scenario reports everything at once.
func EvaluateAssertions(result *Result, assertions []Assertion) {
	for i, a := range assertions {
		switch a.Type {
		case AssertQueueCount:
			if result.QueueCount != a.Count {
				result.AddError(fmt.Sprintf("assertions[%d]: queue has %d writes, want %d", i, result.QueueCount, a.Count))
			}

		case AssertDeadLetterCount:
			if result.DeadLetterCount != a.Count {
				result.AddError(fmt.Sprintf("assertions[%d]: %d dead letters, want %d", i, result.DeadLetterCount, a.Count))
			}

		case AssertDeliveredCount:
			if len(result.Delivered) != a.Count {
				result.AddError(fmt.Sprintf("assertions[%d]: %d deliveries, want %d", i, len(result.Delivered), a.Count))
			}

		case AssertNotifiedCount:
			if len(result.Notified) != a.Count {
				result.AddError(fmt.Sprintf("assertions[%d]: %d notifications shown, want %d", i, len(result.Notified), a.Count))
			}

		case AssertDeliveryOrder:
			if msg := checkDeliveryOrder(result); msg != "" {
				result.AddError(fmt.Sprintf("assertions[%d]: %s", i, msg))
			}

		case AssertUniqueKeys:
			if msg := checkUniqueKeys(result); msg != "" {
				result.AddError(fmt.Sprintf("assertions[%d]: %s", i, msg))
			}
		}
	}
}

// checkDeliveryOrder verifies the delivered keys respect submission
// order: writes may be dropped along the way (rejections), but a later
// submission must never be delivered before an earlier one.
func checkDeliveryOrder(result *Result) string {
	index := make(map[string]int, len(result.Submitted))
	for i, id := range result.Submitted {
		index[id] = i
	}

	prev := -1
	for _, d := range result.Delivered {
		pos, ok := index[d.Key]
		if !ok {
			return fmt.Sprintf("delivered key %s was never submitted", d.Key)
		}
		if pos < prev {
			return fmt.Sprintf("delivery of %s overtook an earlier submission", d.Key)
		}
		prev = pos
	}
	return ""
}

// checkUniqueKeys verifies no idempotency key was delivered twice.
func checkUniqueKeys(result *Result) string {
	seen := make(map[string]bool, len(result.Delivered))
	for _, d := range result.Delivered {
		if seen[d.Key] {
			return fmt.Sprintf("key %s delivered more than once", d.Key)
		}
		seen[d.Key] = true
	}
	return ""
}
