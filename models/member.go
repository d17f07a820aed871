package models

import "time"

type Role string

const (
	RoleOwner   Role = "OWNER"
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleViewer  Role = "VIEWER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager, RoleViewer:
		return true
	}
	return false
}

// CanManageBilling reports whether the role may start checkouts or open the
// billing portal.
func (r Role) CanManageBilling() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanManageFleet reports whether the role may register aircraft.
func (r Role) CanManageFleet() bool {
	return r == RoleOwner || r == RoleAdmin || r == RoleManager
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

type Aircraft struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Registration   string    `json:"registration"`
	Model          string    `json:"model"`
	CreatedAt      time.Time `json:"created_at"`
}
