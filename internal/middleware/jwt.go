package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type jwtOptions struct {
	queryToken bool
}

type JWTOption func(*jwtOptions)

// AllowQueryToken also accepts the token from the "token" query parameter.
// Browsers cannot set headers on websocket upgrades, so only the websocket
// route enables it.
func AllowQueryToken() JWTOption {
	return func(o *jwtOptions) { o.queryToken = true }
}

// JWT validates the bearer token and stores user_id and role on the context.
func JWT(secret string, opts ...JWTOption) echo.MiddlewareFunc {
	key := []byte(secret)
	var o jwtOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if (!ok || tokenStr == "") && o.queryToken {
				tokenStr = c.QueryParam("token")
			}
			if tokenStr == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing token"})
			}

			claims := jwt.MapClaims{}
			_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return key, nil
			}, jwt.WithExpirationRequired())
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			userID, _ := claims["user_id"].(string)
			if userID == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token claims"})
			}
			role, _ := claims["role"].(string)
			if role == "" {
				role = "user"
			}

			c.Set("user_id", userID)
			c.Set("role", role)
			return next(c)
		}
	}
}

// IssueToken signs an HS256 token carrying the claims JWT reads.
func IssueToken(secret, userID, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
