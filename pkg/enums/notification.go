package enums

// NotificationTaskStatus tracks a low-stock notification through its retry queue.
type NotificationTaskStatus string

const (
	NotificationTaskPending    NotificationTaskStatus = "PENDING"
	NotificationTaskProcessing NotificationTaskStatus = "PROCESSING"
	NotificationTaskSent       NotificationTaskStatus = "SENT"
)

// IsValid reports whether the value matches a known task status.
func (s NotificationTaskStatus) IsValid() bool {
	switch s {
	case NotificationTaskPending, NotificationTaskProcessing, NotificationTaskSent:
		return true
	}
	return false
}

// AlertType classifies operator-facing alert records.
type AlertType string

const (
	AlertLowStock AlertType = "LOW_STOCK"
)

// IsValid reports whether the value matches a known alert type.
func (a AlertType) IsValid() bool {
	return a == AlertLowStock
}
