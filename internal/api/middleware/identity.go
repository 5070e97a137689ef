package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ownerIDKey = "owner_id"

// OwnerIdentity resolves the acting owner for the request. The gateway in
// front of this service has already authenticated the caller, so the token
// subject is read without signature validation. Requests without a bearer
// token may carry the owner directly in X-Owner-ID.
func OwnerIdentity() gin.HandlerFunc {
	parser := jwt.NewParser()

	return func(c *gin.Context) {
		ownerID, ok := resolveOwnerID(parser, c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":      "owner identity required",
				"request_id": c.GetString("request_id"),
			})
			c.Abort()
			return
		}

		c.Set(ownerIDKey, ownerID)
		c.Next()
	}
}

func resolveOwnerID(parser *jwt.Parser, c *gin.Context) (uuid.UUID, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return uuid.Nil, false
		}

		claims := jwt.MapClaims{}
		if _, _, err := parser.ParseUnverified(parts[1], claims); err != nil {
			return uuid.Nil, false
		}
		subject, err := claims.GetSubject()
		if err != nil {
			return uuid.Nil, false
		}
		ownerID, err := uuid.Parse(subject)
		if err != nil {
			return uuid.Nil, false
		}
		return ownerID, true
	}

	if header := c.GetHeader("X-Owner-ID"); header != "" {
		ownerID, err := uuid.Parse(header)
		if err != nil {
			return uuid.Nil, false
		}
		return ownerID, true
	}

	return uuid.Nil, false
}

// OwnerID returns the owner resolved by OwnerIdentity for this request.
func OwnerID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ownerIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
