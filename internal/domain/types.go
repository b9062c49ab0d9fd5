package domain

import "time"

// FeedbackStatus is the lifecycle state of a follow-up task.
// Pending and AskingPickup are active; Completed and Cancelled are terminal.
type FeedbackStatus string

const (
	StatusPending      FeedbackStatus = "pending"
	StatusAskingPickup FeedbackStatus = "asking_pickup"
	StatusCompleted    FeedbackStatus = "completed"
	StatusCancelled    FeedbackStatus = "cancelled"
)

// Terminal reports whether no further transition may leave this status.
func (s FeedbackStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Customer struct {
	ID        int64
	Phone     string
	Name      string
	ChatID    string
	CreatedAt time.Time
}

// FeedbackTask is one outstanding or historical follow-up for one
// order/customer interaction. Terminal tasks are kept for history.
type FeedbackTask struct {
	ID             string
	CustomerID     int64
	CreatedAt      time.Time
	ScheduledFor   time.Time
	Status         FeedbackStatus
	PickupAttempts int
}
