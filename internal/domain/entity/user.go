package entity

import "time"

// User is an identity from the directory. Roles holds role names.
type User struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Department string    `json:"department,omitempty"`
	Unit       string    `json:"unit,omitempty"`
	ManagerID  *int64    `json:"manager_id,omitempty"`
	Active     bool      `json:"active"`
	Roles      []string  `json:"roles"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasRole reports whether the user holds the named role
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Role is a named permission group
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
}
