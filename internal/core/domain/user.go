package domain

import "time"

type UserID int64

type UserRole string

const (
	RoleDoctor  UserRole = "Doctor"
	RolePatient UserRole = "Patient"
)

type User struct {
	ID           UserID
	Username     string
	FirstName    string
	LastName     string
	Role         UserRole
	PasswordHash string
	CreatedAt    time.Time
}

// DisplayName is the name shown to the peer in chat and call events.
func (u *User) DisplayName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	return u.FirstName + " " + u.LastName
}
