package domain

import "time"

type Role string

const (
	RoleLeader   Role = "leader"
	RoleResident Role = "resident"
)

func (r Role) Valid() bool {
	switch r {
	case RoleLeader, RoleResident:
		return true
	default:
		return false
	}
}

type User struct {
	ID          string
	Username    string
	Email       string
	DisplayName string
	Role        Role
}

// LoginResult is what the remote identity API hands back for a successful
// login. The token is opaque to this service.
type LoginResult struct {
	User      User
	Token     string
	ExpiresAt *time.Time
}
