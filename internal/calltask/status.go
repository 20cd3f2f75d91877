package calltask

// ProviderStatuses is the full vocabulary of status strings the telephony
// provider is known to deliver.
var ProviderStatuses = []string{
	"queued",
	"initiated",
	"ringing",
	"in-progress",
	"answered",
	"completed",
	"busy",
	"no-answer",
	"failed",
	"timeout",
	"canceled",
}

// MapProviderStatus maps a provider status string to the internal session
// status. Unrecognized strings map to failed rather than being dropped, so a
// provider vocabulary change surfaces as a failed session instead of a
// silently stuck one.
func MapProviderStatus(provider string) SessionStatus {
	switch provider {
	case "queued", "initiated":
		return SessionInitiated
	case "ringing":
		return SessionRinging
	case "in-progress", "answered":
		return SessionConnected
	case "completed":
		return SessionCompleted
	case "canceled":
		return SessionCancelled
	case "busy", "no-answer", "failed", "timeout":
		return SessionFailed
	default:
		return SessionFailed
	}
}
