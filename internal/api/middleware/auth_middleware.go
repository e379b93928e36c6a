package middleware

import (
	"net/http"
	"strings"

	"campus_parking/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	AuthorizationHeaderKey  = "Authorization"
	AuthorizationTypeBearer = "Bearer"
	// ActorKey holds the verified domain.Actor in the gin context.
	ActorKey = "actor"
	// TokenQueryKey lets browser websocket clients, which cannot set headers, pass the JWT.
	TokenQueryKey = "token"
)

// TokenValidator is satisfied by *service.AuthService.
type TokenValidator interface {
	ValidateToken(token string) (*domain.Actor, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Authenticate là middleware để xác thực JWT
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return m.authenticate(false)
}

// AuthenticateQuery also accepts ?token= when no Authorization header is sent.
func (m *AuthMiddleware) AuthenticateQuery() gin.HandlerFunc {
	return m.authenticate(true)
}

func (m *AuthMiddleware) authenticate(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken, ok := bearerToken(c.GetHeader(AuthorizationHeaderKey))
		if !ok && allowQuery {
			accessToken = c.Query(TokenQueryKey)
			ok = accessToken != ""
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "error": "missing or malformed authorization header"})
			return
		}

		actor, err := m.validator.ValidateToken(accessToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "error": "token is invalid or expired"})
			return
		}

		// Lưu actor vào context để các handler sau sử dụng
		c.Set(ActorKey, *actor)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], AuthorizationTypeBearer) {
		return "", false
	}
	return fields[1], true
}

// AuthorizeRole là middleware để kiểm tra vai trò
func (m *AuthMiddleware) AuthorizeRole(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			log.Error().Str("path", c.FullPath()).Msg("AuthorizeRole used without Authenticate")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "access denied"})
			return
		}

		for _, reqRole := range requiredRoles {
			if actor.Role == reqRole {
				c.Next()
				return
			}
		}

		log.Warn().Str("role", actor.Role).Strs("required", requiredRoles).Str("path", c.FullPath()).Msg("role not allowed")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "your role may not perform this action"})
	}
}

// CurrentActor returns the caller set by Authenticate.
func CurrentActor(c *gin.Context) (domain.Actor, bool) {
	v, exists := c.Get(ActorKey)
	if !exists {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}
