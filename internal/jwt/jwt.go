package jwt

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mindwell-dev/mindwell/internal/domain"
	internal_errors "github.com/mindwell-dev/mindwell/internal/errors"
	"github.com/mindwell-dev/mindwell/internal/logger"
)

type JwtService interface {
	NewAnonymousToken(sessionKey domain.ParticipantRef) (string, error)
	DecodeToken(jwtStr string) (*jwt.Token, error)
}

type Jwt struct {
	secretKey string
	anonTTL   time.Duration
}

func New(secretKey string, anonTTL time.Duration) JwtService {
	return &Jwt{secretKey, anonTTL}
}

// NewAnonymousToken issues a server-signed student session for callers
// who choose not to authenticate. Expiry is enforced here, server
// side; clients cannot extend it.
func (j *Jwt) NewAnonymousToken(sessionKey domain.ParticipantRef) (string, error) {
	claims := jwt.MapClaims{}
	claims["sub"] = sessionKey
	claims["role"] = string(domain.RoleStudent)
	claims["anon"] = true
	claims["exp"] = time.Now().Add(j.anonTTL).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(j.secretKey))
	if err != nil {
		logger.Log.Error("failed to sign anonymous token", "err", err)
		return "", errors.New("can't create token")
	}

	return tokenString, nil
}

func (j *Jwt) DecodeToken(jwtStr string) (*jwt.Token, error) {
	token, err := jwt.Parse(jwtStr, func(token *jwt.Token) (interface{}, error) {
		// Verify signing algorithm
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, &internal_errors.ErrorWithStatusCode{Message: fmt.Sprintf("Unexpected signing method: %v", token.Header["alg"]), StatusCode: http.StatusUnauthorized}
		}
		return []byte(j.secretKey), nil
	})
	if err != nil {
		return nil, &internal_errors.ErrorWithStatusCode{Message: "Invalid token signature", StatusCode: http.StatusUnauthorized}
	}

	if !token.Valid {
		return nil, &internal_errors.ErrorWithStatusCode{Message: "Invalid access token", StatusCode: http.StatusUnauthorized}
	}

	return token, nil
}
