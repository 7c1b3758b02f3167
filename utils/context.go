package utils

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/linskybing/gpulab/services"
	"github.com/linskybing/gpulab/types"
)

var ErrNoClaims = errors.New("no claims in context")

func GetClaims(c *gin.Context) (*types.Claims, error) {
	raw, exists := c.Get("claims")
	if !exists {
		return nil, ErrNoClaims
	}
	claims, ok := raw.(*types.Claims)
	if !ok {
		return nil, ErrNoClaims
	}
	return claims, nil
}

// IdentityFromContext turns the verified claims into the coordinator's
// identity value.
func IdentityFromContext(c *gin.Context) (services.Identity, error) {
	claims, err := GetClaims(c)
	if err != nil {
		return services.Identity{}, err
	}
	return services.Identity{
		StudentID:     claims.Subject,
		Name:          claims.Name,
		Email:         claims.Email,
		StudentNumber: claims.StudentNumber,
	}, nil
}
