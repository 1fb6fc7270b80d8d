// Package capability centralizes host feature detection.
//
// Instead of checking for optional host APIs at every call site, the
// daemon probes its collaborators once at startup and hands the resulting
// typed Set to the components that pick a strategy from it: the sync
// coordinator (host-scheduled replay vs retry-on-online fallback) and the
// push manager (enabled vs silently off).
package capability

// Optional is implemented by host collaborators that may be present but
// degraded. A collaborator that does not implement Optional counts as
// supported by virtue of being non-nil.
type Optional interface {
	Supported() bool
}

// Set is the result of one startup probe. Immutable after Probe.
type Set struct {
	// BackgroundSync is true when a deferred-task scheduler exists, i.e.
	// queued writes are retried even after the submitting process exits.
	BackgroundSync bool
	// Push is true when a push provider channel is available.
	Push bool
	// Notifications is true when notifications can actually be displayed.
	Notifications bool
}

// Probe inspects the injected host collaborators and yields the
// capability set. A nil collaborator means the host lacks the API
// (UnsupportedByHost), never an error.
func Probe(scheduler, pushProvider, notifier any) Set {
	return Set{
		BackgroundSync: available(scheduler),
		Push:           available(pushProvider),
		Notifications:  available(notifier),
	}
}

func available(v any) bool {
	if v == nil {
		return false
	}
	if opt, ok := v.(Optional); ok {
		return opt.Supported()
	}
	return true
}
