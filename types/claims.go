package types

import "github.com/golang-jwt/jwt/v5"

const (
	RoleStudent   = "student"
	RoleProfessor = "professor"
)

// Claims is the identity asserted by the external auth provider's token.
// Subject carries the student id.
type Claims struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	StudentNumber string `json:"student_number"`
	Role          string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) IsProfessor() bool {
	return c.Role == RoleProfessor
}
