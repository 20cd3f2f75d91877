package service

import "github.com/ndemidova/callline/internal/calltask"

// EvaluateRetry decides whether a task whose call just failed gets another
// attempt. failedAttempts is the number of previously failed sessions for the
// task, recomputed from persisted history at decision time so the decision
// survives restarts and redelivered events.
func EvaluateRetry(settings calltask.Settings, failedAttempts int) bool {
	return settings.AutoRetryFailedCalls && failedAttempts < settings.MaxRetryAttempts
}
