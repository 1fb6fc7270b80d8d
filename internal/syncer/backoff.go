package syncer

import "time"

// Default retry pacing between failed replay rounds. The host gives no
// latency guarantee for deferred tasks, so these only bound how eagerly
// the fallback path re-polls; the connectivity edge still wakes replay
// immediately.
const (
	defaultBaseDelay = 30 * time.Second
	defaultMaxDelay  = 15 * time.Minute
)

// backoffDelay returns the exponential delay for the n-th consecutive
// failed round: base * 2^(n-1), capped at max. Round 0 means no failure
// yet and returns 0.
func backoffDelay(round int, base, max time.Duration) time.Duration {
	if round <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < round; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
