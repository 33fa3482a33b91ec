package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"jobboard-backend/internal/auth"
	"jobboard-backend/internal/database"
	"jobboard-backend/internal/model"
)

// OptionalAuth resolves the user when a valid bearer token is present
// and stays silent otherwise, for endpoints that are public but show
// more to owners and admins.
func OptionalAuth(db *database.DBinstanceStruct) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			ctx.Next()
			return
		}

		tokenString := ""
		const bearerSchema = "Bearer "
		if len(authHeader) > len(bearerSchema) {
			tokenString = authHeader[len(bearerSchema):]
		}

		token, err := auth.ValidatedToken(tokenString)
		if err != nil || !token.Valid {
			ctx.Next()
			return
		}

		claims, ok := token.Claims.(*jwt.RegisteredClaims)
		if !ok || claims.Issuer != auth.JwtIssuer {
			ctx.Next()
			return
		}

		var foundUser model.User
		if err := db.Where("id = ?", claims.Subject).First(&foundUser).Error; err == nil {
			ctx.Set("user", foundUser)
		}
		ctx.Next()
	}
}
