package auth

import "github.com/onsync/onsync/internal/rbac"

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupAccount describes the organisation created at signup.
type SignupAccount struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	CEOName    string `json:"ceo_name,omitempty"`
	Niche      string `json:"niche,omitempty"`
	Location   string `json:"location,omitempty"`
	WebsiteURL string `json:"website_url,omitempty" validate:"omitempty,url"`
	Timezone   string `json:"timezone,omitempty"`
}

// SignupUser describes the first (super admin) user of a new account.
type SignupUser struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	PhoneNumber string `json:"phone_number,omitempty"`
	JobRole     string `json:"job_role,omitempty"`
}

// SignupRequest is the signup payload.
type SignupRequest struct {
	Account SignupAccount `json:"account"`
	User    SignupUser    `json:"user"`
}

// User is the user object returned by login and signup.
type User struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	AccountID   int64  `json:"account_id"`
	AccountName string `json:"account_name"`
}

// LoginResult is the login response.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Account is the account summary returned by signup.
type Account struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SignupResult is the signup response.
type SignupResult struct {
	Message string  `json:"message"`
	Token   string  `json:"token"`
	Account Account `json:"account"`
	User    User    `json:"user"`
}

// Profile is the current user as returned by the me endpoint, with the
// capability flags inlined.
type Profile struct {
	ID          int64  `json:"id"`
	Account     int64  `json:"account"`
	AccountName string `json:"account_name"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	rbac.PermissionSet
}

func (u User) identity() *rbac.Identity {
	return &rbac.Identity{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        rbac.Role(u.Role),
		AccountID:   u.AccountID,
		AccountName: u.AccountName,
	}
}

func (p Profile) identity() *rbac.Identity {
	perms := p.PermissionSet
	return &rbac.Identity{
		ID:          p.ID,
		Email:       p.Email,
		Name:        p.Name,
		Role:        rbac.Role(p.Role),
		AccountID:   p.Account,
		AccountName: p.AccountName,
		Permissions: &perms,
	}
}
