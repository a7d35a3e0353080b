package identity

import (
	"time"

	"github.com/ehr/records/internal/platform/auth"
)

// User maps to the users table. Password holds the bcrypt hash and is never
// serialized.
type User struct {
	ID        string    `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Password  string    `db:"password" json:"-"`
	FirstName string    `db:"first_name" json:"firstName"`
	LastName  string    `db:"last_name" json:"lastName"`
	Email     string    `db:"email" json:"email"`
	Role      auth.Role `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

func (u *User) Account() *auth.Account {
	return &auth.Account{ID: u.ID, Role: u.Role}
}

// UserView is the public shape of a user, with the role's permission names.
type UserView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Email       string    `json:"email"`
	Role        auth.Role `json:"role"`
	Permissions []string  `json:"permissions"`
}

func (u *User) View() UserView {
	return UserView{
		ID:          u.ID,
		Username:    u.Username,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		Role:        u.Role,
		Permissions: auth.PermissionsFor(u.Role).Names(),
	}
}

type LoginRequest struct {
	Username string `json:"username" validate:"notblank"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	User  UserView `json:"user"`
	Token string   `json:"token"`
}

// NewUser is the input for creating an account. An empty ID gets a fresh UUID.
type NewUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username" validate:"notblank,max=50"`
	Password  string    `json:"password" validate:"required,min=8"`
	FirstName string    `json:"firstName" validate:"notblank,max=50"`
	LastName  string    `json:"lastName" validate:"notblank,max=50"`
	Email     string    `json:"email" validate:"required,email,max=100"`
	Role      auth.Role `json:"role" validate:"required"`
}
