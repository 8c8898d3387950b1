package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const operatorRole = "operator"

// OperatorClaims are carried by operator tokens.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueOperatorToken signs an HS256 operator token valid for ttl.
func IssueOperatorToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("operator secret is empty")
	}
	now := time.Now()
	claims := OperatorClaims{
		Role: operatorRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ValidateOperatorToken parses tokenString and checks its signature, expiry and role.
func ValidateOperatorToken(secret, tokenString string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Role != operatorRole {
		return nil, fmt.Errorf("unexpected role %q", claims.Role)
	}
	return claims, nil
}

// OperatorAuth guards routes that change probabilities or clear winners.
// With an empty secret the routes are open, like the single-browser widget.
func OperatorAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		claims, err := ValidateOperatorToken(secret, parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("operator", claims.Subject)
		c.Next()
	}
}
