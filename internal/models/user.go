package models

// Role represents the dashboard role of a person.
type Role string

const (
	RoleParent  Role = "parent"
	RoleTeacher Role = "teacher"
	RoleDriver  Role = "driver"
	RoleAdmin   Role = "admin"
)

// ParseRole converts a string to Role.
func ParseRole(s string) Role {
	switch s {
	case "admin":
		return RoleAdmin
	case "teacher":
		return RoleTeacher
	case "driver":
		return RoleDriver
	default:
		return RoleParent
	}
}

// User is a person who can receive notifications.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// IsAdmin returns true if user has admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
