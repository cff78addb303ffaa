package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/banksoal/apiserver/types"
)

// HeaderAccessToken carries the token issued by the auth service.
const HeaderAccessToken = "x-access-token"

type contextKey string

const contextActorKey contextKey = "actor"

// AccessClaims are the claims read from an access token.
type AccessClaims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// RequireAuth verifies the access token and injects the actor into context.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return requireAuth([]byte(jwtSecret))
}

func requireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := accessToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			actor, err := parseActor(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), contextActorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFromContext(ctx context.Context) (types.Actor, error) {
	actor, ok := ctx.Value(contextActorKey).(types.Actor)
	if !ok || actor.ID < 1 {
		return types.Actor{}, errors.New("missing subject")
	}
	return actor, nil
}

func parseActor(tokenString string, secret []byte) (types.Actor, error) {
	claims := AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return types.Actor{}, err
	}
	if !token.Valid {
		return types.Actor{}, errors.New("invalid token")
	}

	id, err := strconv.ParseInt(strings.TrimSpace(claims.Subject), 10, 64)
	if err != nil || id < 1 {
		return types.Actor{}, errors.New("invalid subject")
	}
	return types.Actor{ID: id, Name: claims.Name, Role: claims.Role}, nil
}

// accessToken reads x-access-token and falls back to a Bearer header.
func accessToken(r *http.Request) (string, error) {
	if token := strings.TrimSpace(r.Header.Get(HeaderAccessToken)); token != "" {
		return token, nil
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
