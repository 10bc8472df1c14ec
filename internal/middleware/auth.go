package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mindwell-dev/mindwell/internal/domain"
	jwt_internal "github.com/mindwell-dev/mindwell/internal/jwt"
	"github.com/mindwell-dev/mindwell/internal/logger"
	"github.com/mindwell-dev/mindwell/internal/utils"
)

// Key to store the caller in the request context
type key int

const CallerKey key = 0

// Auth verifies the token the identity collaborator issued and puts
// the resulting Caller in the request context. The core performs no
// credential verification beyond the signature: role and reference in
// the claims are trusted.
type Auth struct {
	jwtService jwt_internal.JwtService
}

func NewAuth(jwtService jwt_internal.JwtService) *Auth {
	return &Auth{jwtService: jwtService}
}

// NeedAuth returns middleware that requires any authenticated caller
func (a *Auth) NeedAuth() func(http.Handler) http.Handler {
	return a.auth("")
}

// CounselorOnly returns middleware that requires a counselor caller
func (a *Auth) CounselorOnly() func(http.Handler) http.Handler {
	return a.auth(domain.RoleCounselor)
}

// StudentOnly returns middleware that requires a student caller
func (a *Auth) StudentOnly() func(http.Handler) http.Handler {
	return a.auth(domain.RoleStudent)
}

func (a *Auth) extractCaller(r *http.Request) (*domain.Caller, error) {
	// Cookie for browser clients, Authorization header for API clients
	var tokenString string
	accessCookie, err := r.Cookie("accessToken")
	if err == nil {
		tokenString = accessCookie.Value
	} else if token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
		tokenString = token
	}

	if tokenString == "" {
		return nil, errNoToken
	}

	token, err := a.jwtService.DecodeToken(tokenString)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errInvalidClaims
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, errInvalidClaims
	}

	roleStr, ok := claims["role"].(string)
	if !ok {
		return nil, errInvalidClaims
	}
	role := domain.Role(roleStr)
	if role != domain.RoleStudent && role != domain.RoleCounselor {
		return nil, errInvalidClaims
	}

	anon, _ := claims["anon"].(bool)
	if anon && role != domain.RoleStudent {
		return nil, errInvalidClaims
	}

	return &domain.Caller{Role: role, Ref: sub, Anonymous: anon}, nil
}

// Sentinel errors for extractCaller
var (
	errNoToken       = errorString("no token")
	errInvalidClaims = errorString("invalid claims")
)

type errorString string

func (e errorString) Error() string { return string(e) }

func (a *Auth) auth(requiredRole domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := a.extractCaller(r)
			if err != nil {
				switch err {
				case errNoToken:
					http.Error(w, "Please sign-in", http.StatusUnauthorized)
				case errInvalidClaims:
					logger.Log.Error("invalid jwt claims")
					http.Error(w, "Invalid token", http.StatusUnauthorized)
				default:
					utils.WriteErrorAndStatusCode(w, err)
				}
				return
			}

			if requiredRole != "" && caller.Role != requiredRole {
				http.Error(w, "Access denied", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), CallerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCallerFromContext retrieves the caller from the context
func GetCallerFromContext(r *http.Request) *domain.Caller {
	caller, ok := r.Context().Value(CallerKey).(*domain.Caller)
	if !ok {
		return nil
	}
	return caller
}
