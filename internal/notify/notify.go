package notify

import "log"

// Notifier receives user-visible notices (rendered as toasts by the
// embedding UI). Failures surfaced here are recoverable by definition.
type Notifier interface {
	Info(message string)
	Error(message string)
}

// LogNotifier writes notices to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Info(message string) {
	log.Printf("notice: %s", message)
}

func (LogNotifier) Error(message string) {
	log.Printf("error: %s", message)
}
