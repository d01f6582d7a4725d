package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"reviewline/internal/domain"
	"reviewline/internal/repo"
)

type AuthConfig struct {
	JWTSecret string
}

type principalKey struct{}

func withActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, principalKey{}, a)
}

// actorFromContext returns the authenticated actor, or nil for anonymous
// requests.
func actorFromContext(ctx context.Context) *domain.Actor {
	if a, ok := ctx.Value(principalKey{}).(domain.Actor); ok {
		return &a
	}
	return nil
}

func requireActor(ctx context.Context) (domain.Actor, huma.StatusError) {
	if a := actorFromContext(ctx); a != nil {
		return *a, nil
	}
	return domain.Actor{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
}

func authenticateJWT(ctx context.Context, r repo.Repo, token, secret string) (domain.Actor, error) {
	if strings.TrimSpace(secret) == "" {
		return domain.Actor{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return domain.Actor{}, err
	}
	if !parsed.Valid {
		return domain.Actor{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return domain.Actor{}, errors.New("subject claim required")
	}
	// The admin flag always comes from the store, never from the token.
	return r.GetActor(ctx, claims.Subject)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware resolves credentials to an actor. Requests without
// credentials pass through anonymously; endpoints that need an identity
// enforce it themselves.
func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}

			authzHeader := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))

			if authzHeader != "" {
				token, ok := bearerToken(authzHeader)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				actor, err := authenticateJWT(req.Context(), r, token, cfg.JWTSecret)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withActor(req.Context(), actor)))
				return
			}

			if apiKeyHeader != "" {
				actor, err := r.GetActorByAPIKey(req.Context(), apiKeyHeader)
				if err != nil {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				next.ServeHTTP(w, req.WithContext(withActor(req.Context(), actor)))
				return
			}

			next.ServeHTTP(w, req)
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

// IssueToken signs a short-lived JWT for an actor. Used by the CLI's
// token subcommand and by tests.
func IssueToken(secret, actorID string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: actorID})
	return tok.SignedString([]byte(secret))
}
