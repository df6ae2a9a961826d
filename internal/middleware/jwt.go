package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-scheduler/internal/models"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
	"github.com/noah-isme/studio-scheduler/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

const bearerScheme = "Bearer"

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// Claims returns the verified claims of the current request, or nil.
func Claims(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func reject(c *gin.Context, err error) {
	if appErrors.FromError(err).Status == appErrors.ErrUnauthorized.Status {
		c.Header("WWW-Authenticate", bearerScheme)
	}
	response.Error(c, err)
	c.Abort()
}

// JWT admits only requests carrying a bearer token the verifier accepts.
func JWT(verifier tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			reject(c, appErrors.ErrUnauthorized)
			return
		}
		token, ok := bearerToken(header)
		if !ok {
			reject(c, appErrors.Clone(appErrors.ErrUnauthorized, "authorization header must be a bearer token"))
			return
		}
		claims, err := verifier.ValidateToken(token)
		if err != nil {
			reject(c, err)
			return
		}
		c.Set(ContextUserKey, claims)
		c.Next()
	}
}
