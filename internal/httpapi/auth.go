package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	contextKeyAdminID = "admin_id"
	roleAdmin         = "admin"
)

// adminAuth validates a bearer token signed with the admin key and carrying
// an admin role claim. Full session management lives outside this service;
// this guard only keeps override routes off the open internet.
func (server *Server) adminAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")
		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(server.cfg.AdminSigningKey), nil
		}, jwt.WithIssuer(server.cfg.AdminIssuer), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if role, _ := claims["role"].(string); role != roleAdmin {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		subject, _ := claims["sub"].(string)
		if subject == "" {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "subject required"})
			return
		}
		ctx.Set(contextKeyAdminID, subject)
		ctx.Next()
	}
}

func adminID(ctx *gin.Context) string {
	value, _ := ctx.Get(contextKeyAdminID)
	id, _ := value.(string)
	return id
}
