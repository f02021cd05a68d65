package model

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Account is the slice of the user record payments needs.
type Account struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Phone        string
	PasswordHash string
	Role         Role
}

func (a *Account) IsAdmin() bool { return a.Role == RoleAdmin }
