// FILE: internal/pkg/serverutils/jwt_middleware.go
package serverutils

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the part of the access token the collaboration server reads.
// Tokens are issued elsewhere.
type Claims struct {
	UserID string
	Name   string
	Email  string
}

var errInvalidToken = errors.New("invalid token")

func BearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return ""
}

func ParseToken(tokenStr, secret string) (Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		// Ensure Signing Method is HMAC
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Claims{}, errInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errInvalidToken
	}

	userID, _ := mc["user_id"].(string)
	if userID == "" {
		return Claims{}, errors.New("token missing user_id")
	}
	name, _ := mc["name"].(string)
	if name == "" {
		name, _ = mc["full_name"].(string)
	}
	email, _ := mc["email"].(string)

	return Claims{UserID: userID, Name: name, Email: email}, nil
}

// NewJwtMiddleware guards REST routes and exposes the caller through
// ctx.Locals("user_id"), ("user_name") and ("email").
func NewJwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := BearerToken(ctx.Get("Authorization"))
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Missing token"})
		}

		claims, err := ParseToken(tokenStr, secret)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid token"})
		}

		ctx.Locals("user_id", claims.UserID)
		ctx.Locals("user_name", claims.Name)
		ctx.Locals("email", claims.Email)
		return ctx.Next()
	}
}
