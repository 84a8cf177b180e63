package domain

import "time"

// FrequencyID selects one of the predefined recurrence intervals.
type FrequencyID int

const (
	FrequencyHourly  FrequencyID = 1
	FrequencyDaily   FrequencyID = 2
	FrequencyWeekly  FrequencyID = 3
	FrequencyMonthly FrequencyID = 4
)

var frequencySeconds = map[FrequencyID]int64{
	FrequencyHourly:  3600,
	FrequencyDaily:   86400,
	FrequencyWeekly:  7 * 86400,
	FrequencyMonthly: 30 * 86400,
}

// Seconds returns the interval length, or false for an unknown id.
func (f FrequencyID) Seconds() (int64, bool) {
	s, ok := frequencySeconds[f]
	return s, ok
}

// ScheduleSpec is what a caller asks for. A nil Frequency means a one-time
// run at StartAt.
type ScheduleSpec struct {
	StartAt   *time.Time   `json:"start_datetime"`
	EndAt     *time.Time   `json:"end_datetime,omitempty"`
	Frequency *FrequencyID `json:"frequency_id,omitempty"`
}

// IsRecurring reports whether a periodic task is requested.
func (s ScheduleSpec) IsRecurring() bool { return s.Frequency != nil }

// TaskType distinguishes one-shot from periodic scheduler tasks.
type TaskType string

const (
	TaskOneTime  TaskType = "one_time"
	TaskPeriodic TaskType = "periodic"
)

// Task is the payload exchanged with the scheduler service.
type Task struct {
	ID               string            `json:"id,omitempty"`
	Type             TaskType          `json:"type"`
	RunAt            *time.Time        `json:"run_datetime,omitempty"`
	FrequencySeconds int64             `json:"frequency,omitempty"`
	StartAt          *time.Time        `json:"start_datetime,omitempty"`
	EndAt            *time.Time        `json:"end_datetime,omitempty"`
	CallbackURL      string            `json:"callback_url"`
	CallbackPayload  map[string]string `json:"callback_payload,omitempty"`
}

// SameSchedule reports whether two tasks would fire at the same times.
// Callback details are ignored.
func (t Task) SameSchedule(o Task) bool {
	if t.Type != o.Type {
		return false
	}
	if t.Type == TaskOneTime {
		return timeEqual(t.RunAt, o.RunAt)
	}
	return t.FrequencySeconds == o.FrequencySeconds &&
		timeEqual(t.StartAt, o.StartAt) &&
		timeEqual(t.EndAt, o.EndAt)
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Unix() == b.Unix()
}
