package models

import "time"

// Notification is one message addressed to one recipient about one alert.
type Notification struct {
	ID            string     `json:"id"`
	RecipientID   string     `json:"recipient_id"`
	RecipientRole Role       `json:"recipient_role"`
	SubjectID     string     `json:"subject_id"`
	Kind          AlertKind  `json:"kind"`
	Severity      Severity   `json:"severity"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	Read          bool       `json:"read"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// RecipientRef identifies who receives a notification and in which role.
type RecipientRef struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}
