package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"matri_server/server/common/transport/httpresp"
)

type identityGate interface {
	ParseUserID(token string) (string, error)
}

const ContextUserID = "auth_user_id"

// AuthRequired resolves the bearer token to a user identity and stores it on
// the request context. The comm service trusts this identity everywhere else.
func AuthRequired(gate identityGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrMissingBearerToken))
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		userID, err := gate.ParseUserID(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrInvalidToken))
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}
