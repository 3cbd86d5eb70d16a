package domain

import "time"

// Role is the actor role resolved per request from the session.
type Role string

const (
	RoleClient        Role = "client"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAdministrator
}

// User is the domain model for people who sign in.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor is the explicit caller identity handed to every workflow operation.
type Actor struct {
	ID   string
	Role Role
}

// ActorOf builds the actor for an authenticated user.
func ActorOf(u *User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}
