package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"missiondesk/internal/engine/auth"
)

type AuthConfig struct {
	Tokens auth.Tokens
	// Require rejects API calls without a valid bearer token. When false a
	// missing header falls through and handlers trust the actor ids in bodies,
	// which is how the web client has always talked to the API.
	Require bool
	Logger  *slog.Logger
}

type Principal struct {
	UserID string
	Role   string
	Name   string
}

type principalKey struct{}

func (c AuthConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// actorFor resolves who performs a call. A signed-in principal wins; a claimed id
// in the body must agree with it.
func (s *service) actorFor(ctx context.Context, claimed string) (string, huma.StatusError) {
	claimed = strings.TrimSpace(claimed)
	p, ok := principalFromContext(ctx)
	if !ok {
		return claimed, nil
	}
	if claimed != "" && claimed != p.UserID {
		return "", s.newError(http.StatusForbidden, "actor_mismatch", "actor does not match the signed-in user")
	}
	return p.UserID, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig, msgs messages) func(http.Handler) http.Handler {
	open := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "login"):        true,
		path.Join(basePath, "openapi.json"): true,
		path.Join(basePath, "docs"):         true,
	}
	unauthorized := func(w http.ResponseWriter, code string) {
		respondStatusError(w, newAPIError(http.StatusUnauthorized, msgs.For(code, "authentication required")))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if req.Method == http.MethodOptions || open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				if cfg.Require {
					unauthorized(w, "unauthorized")
					return
				}
				next.ServeHTTP(w, req)
				return
			}
			token, ok := bearerToken(authz)
			if !ok || !cfg.Tokens.Enabled() {
				unauthorized(w, auth.CodeInvalidToken)
				return
			}
			claims, err := cfg.Tokens.Parse(token)
			if err != nil {
				cfg.logger().Debug("rejected bearer token", "path", req.URL.Path, "err", err)
				unauthorized(w, auth.CodeInvalidToken)
				return
			}
			ctx := withPrincipal(req.Context(), Principal{
				UserID: claims.Subject,
				Role:   claims.Role,
				Name:   claims.Name,
			})
			next.ServeHTTP(w, req.WithContext(ctx))
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
