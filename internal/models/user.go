package models

import "time"

type User struct {
	ID         int64     `json:"id" yaml:"id"`
	Email      string    `json:"email" yaml:"email"`
	Name       string    `json:"name" yaml:"name"`
	Phone      string    `json:"phone,omitempty" yaml:"phone"`
	Role       string    `json:"role" yaml:"role"` // END_USER, MECHANIC, ADMIN
	IsVerified bool      `json:"is_verified" yaml:"is_verified"`
	Latitude   *float64  `json:"latitude,omitempty" yaml:"latitude"`
	Longitude  *float64  `json:"longitude,omitempty" yaml:"longitude"`
	Address    string    `json:"address,omitempty" yaml:"address"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-"`
}

// HasLocation reports whether both coordinates are stored.
func (u *User) HasLocation() bool {
	return u.Latitude != nil && u.Longitude != nil
}

func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Role: u.Role, Verified: u.IsVerified}
}

// Principal is the authenticated caller as seen by the core.
type Principal struct {
	UserID   int64  `json:"user_id"`
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
}

func (p Principal) IsEndUser() bool  { return p.Role == RoleEndUser }
func (p Principal) IsMechanic() bool { return p.Role == RoleMechanic }
func (p Principal) IsAdmin() bool    { return p.Role == RoleAdmin }
