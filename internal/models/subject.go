// Package models defines domain models for pawwatch.
package models

import "time"

// SizeClass is the size category of a dog, used to pick its ideal weight range.
type SizeClass string

const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
	SizeGiant  SizeClass = "giant"
)

// ParseSizeClass converts a string to SizeClass. Unknown values map to "".
func ParseSizeClass(s string) SizeClass {
	switch s {
	case "small", "SMALL":
		return SizeSmall
	case "medium", "MEDIUM":
		return SizeMedium
	case "large", "LARGE":
		return SizeLarge
	case "giant", "GIANT":
		return SizeGiant
	default:
		return ""
	}
}

// Location is where a dog is assigned or where a sample was taken.
type Location string

const (
	LocationHome   Location = "home"
	LocationSchool Location = "school"
	LocationClinic Location = "clinic"
)

// Subject is the dog whose metrics and alerts are tracked.
type Subject struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	SizeClass  SizeClass  `json:"size_class"`
	OwnerID    string     `json:"owner_id"`
	Locations  []Location `json:"locations,omitempty"`
	TeacherIDs []string   `json:"teacher_ids,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AssignedTo reports whether the subject is assigned to a location.
func (s *Subject) AssignedTo(loc Location) bool {
	for _, l := range s.Locations {
		if l == loc {
			return true
		}
	}
	return false
}
