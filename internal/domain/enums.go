package domain

// Task status values. New tasks always start as Not Started.
const (
	TaskStatusNotStarted = "Not Started"
	TaskStatusInProgress = "In Progress"
	TaskStatusCompleted  = "Completed"
	TaskStatusCancelled  = "Cancelled"
)

// Task priority values.
const (
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"
	PriorityUrgent = "Urgent"
)

func ValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusNotStarted, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	}
	return false
}

func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
