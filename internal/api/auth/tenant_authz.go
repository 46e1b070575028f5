// Package auth implements operator-facing authorization: an OIDC bearer
// token check (signature, expiry and issuer verified against an external
// identity provider) followed by an OPA/rego policy decision on which
// tenants the caller may act against. Login/redirect flows are out of
// scope — only verification of a token the operator already holds.
package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

type contextKey struct{ name string }

var (
	claimsCtxKey        = &contextKey{"operator-claims"}
	allowedTenantsCtxKey = &contextKey{"allowed-tenants"}
)

var tracer = otel.Tracer("toon-fleet-server/authz")

// NewVerifier builds an OIDC ID token verifier against issuerURL, scoped to
// clientID as the expected audience. Call once at startup; the returned
// verifier is safe for concurrent use by the bearer middleware.
func NewVerifier(ctx context.Context, issuerURL, clientID string) (*oidc.IDTokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, err
	}
	return provider.Verifier(&oidc.Config{ClientID: clientID}), nil
}

// NewBearerAuthenticator verifies the operator's Authorization: Bearer
// token as an OIDC ID token (signature, expiry, issuer, audience) and
// stores its claims on the request context for NewTenantAuthorizer.
func NewBearerAuthenticator(verifier *oidc.IDTokenVerifier, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			idToken, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				logger.Info().Err(err).Msg("bearer token rejected")
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			var claims map[string]any
			if err := idToken.Claims(&claims); err != nil {
				logger.Error().Err(err).Msg("could not decode id token claims")
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), claimsCtxKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFromContext(ctx context.Context) (map[string]any, bool) {
	claims, ok := ctx.Value(claimsCtxKey).(map[string]any)
	return claims, ok
}

// NewTenantAuthorizer compiles an OPA policy deciding, per request, which
// tenants the authenticated caller may act against. It must run after
// NewBearerAuthenticator so verified claims are available on the request
// context.
func NewTenantAuthorizer(ctx context.Context, policies io.Reader, logger zerolog.Logger) (func(http.Handler) http.Handler, error) {
	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, errors.New("unable to read authz policies: " + err.Error())
	}

	query, err := rego.New(
		rego.Query("x = data.toonfleet.authz.allow"),
		rego.Module("toonfleet_authz.rego", string(module)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, span := tracer.Start(r.Context(), "check-tenant-authz")
			defer span.End()

			claims, ok := claimsFromContext(r.Context())
			if !ok {
				logger.Info().Msg("missing operator claims")
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			path := strings.Split(r.URL.Path, "/")
			input := map[string]any{
				"method": r.Method,
				"path":   path[1:],
				"claims": claims,
			}

			results, err := query.Eval(r.Context(), rego.EvalInput(input))
			if err != nil {
				logger.Error().Err(err).Msg("opa eval failed")
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if len(results) == 0 {
				logger.Warn().Msg("opa query could not be satisfied")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			binding := results[0].Bindings["x"]
			if allowed, ok := binding.(bool); ok && !allowed {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			result, ok := binding.(map[string]any)
			if !ok {
				logger.Error().Msg("unexpected opa result shape")
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			rawTenants, ok := result["tenants"].([]any)
			if !ok {
				logger.Error().Msg("opa policy did not return a tenants list")
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			tenants := make([]string, len(rawTenants))
			for i, t := range rawTenants {
				tenants[i], _ = t.(string)
			}

			next.ServeHTTP(w, r.WithContext(WithAllowedTenants(r.Context(), tenants)))
		})
	}, nil
}

// GetAllowedTenantsFromContext extracts the tenants the current operator
// request is authorized against.
func GetAllowedTenantsFromContext(ctx context.Context) []string {
	tenants, ok := ctx.Value(allowedTenantsCtxKey).([]string)
	if !ok {
		return []string{}
	}
	return tenants
}

// WithAllowedTenants stores the authorized tenant set on ctx.
func WithAllowedTenants(ctx context.Context, tenants []string) context.Context {
	return context.WithValue(ctx, allowedTenantsCtxKey, tenants)
}

// TenantAllowed reports whether tenantID is among the tenants authorized on
// ctx.
func TenantAllowed(ctx context.Context, tenantID string) bool {
	for _, t := range GetAllowedTenantsFromContext(ctx) {
		if t == tenantID {
			return true
		}
	}
	return false
}
