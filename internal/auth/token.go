package auth

import (
	"fmt"
	"strconv"
	"time"

	"farmhub/internal/apperr"
	"farmhub/internal/models"

	"github.com/golang-jwt/jwt/v4"
)

// Claims are the session claims carried in access tokens.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken validates a bearer token and returns the actor it represents.
func ParseToken(secret, tokenString string) (models.Actor, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return models.Actor{}, apperr.Unauthenticated("invalid or expired token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return models.Actor{}, apperr.Unauthenticated("invalid subject claim")
	}
	if claims.Role != models.RoleBuyer && claims.Role != models.RoleFarmer {
		return models.Actor{}, apperr.Unauthenticated("unknown role claim")
	}

	return models.Actor{ID: userID, Role: claims.Role}, nil
}

// IssueToken signs an access token for a user. Used by tests and tooling;
// credential issuance itself lives outside this service.
func IssueToken(secret string, userID int64, role string, ttl time.Duration) (string, error) {
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
