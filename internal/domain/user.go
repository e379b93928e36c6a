package domain

import "time"

const (
	RoleUser      = "user"
	RoleAttendant = "attendant"
	RoleAdmin     = "admin"
)

type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`    // Không bao giờ trả về password hash trong JSON
	Role      string    `json:"role"` // "user", "attendant" hoặc "admin"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RegisterUserDTO struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=6,max=100"`
}

type LoginUserDTO struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponseDTO struct {
	Token    string `json:"token"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Actor is the verified caller identity handed to every core operation.
type Actor struct {
	UserID   int
	Username string
	Role     string
}

func (a Actor) IsStaff() bool {
	return a.Role == RoleAttendant || a.Role == RoleAdmin
}

// Label is what gets written to qr_scan_tracking.actor_id.
func (a Actor) Label() string {
	if a.Username != "" {
		return a.Role + ":" + a.Username
	}
	return a.Role
}

// SystemActor is used by the expiry sweeper and other unattended jobs.
var SystemActor = Actor{Role: "system", Username: "sweeper"}
