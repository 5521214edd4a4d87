package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alagamento-br/apiserver/internal/auth"
	"github.com/alagamento-br/apiserver/internal/authz"
	"github.com/alagamento-br/apiserver/internal/observability"
	"github.com/rs/zerolog"
)

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// OwnerResolver returns the owner of the resource with the given id, or
// nil when the resource has no owner or does not exist.
type OwnerResolver func(ctx context.Context, id int) (*int, error)

// Guard enforces authorization policies in front of handlers.
type Guard struct {
	tokens  TokenVerifier
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewGuard(tokens TokenVerifier, metrics *observability.Metrics, logger zerolog.Logger) *Guard {
	return &Guard{tokens: tokens, metrics: metrics, logger: logger}
}

// Require enforces a policy that needs no owner lookup.
func (g *Guard) Require(policy authz.Policy) func(http.Handler) http.Handler {
	return g.middleware(policy, "", nil)
}

// RequireOwner enforces an owner-scoped policy. The resource id is read
// from the chi URL parameter idParam and resolved through owner.
func (g *Guard) RequireOwner(policy authz.Policy, idParam string, owner OwnerResolver) func(http.Handler) http.Handler {
	return g.middleware(policy, idParam, owner)
}

func (g *Guard) middleware(policy authz.Policy, idParam string, resolve OwnerResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := g.principal(r)

			var ownerID *int
			if policy.Requirement == authz.OwnerScoped && resolve != nil && principal != nil && !principal.IsAdmin() {
				id, err := parseIDParam(r, idParam)
				if err != nil {
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				ownerID, err = resolve(r.Context(), id)
				if err != nil {
					g.logger.Error().Err(err).Str("policy", policy.Name).Int("id", id).Msg("owner lookup failed")
					writeError(w, http.StatusInternalServerError, "failed to authorize request")
					return
				}
			}

			decision := authz.Authorize(principal, policy, ownerID)
			if g.metrics != nil {
				g.metrics.AuthzDecisions.WithLabelValues(policy.Name, decision.String()).Inc()
			}

			switch decision {
			case authz.Unauthorized:
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			case authz.Forbidden:
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			ctx := r.Context()
			if principal != nil {
				ctx = withPrincipal(ctx, *principal)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// principal returns nil for a missing, malformed or invalid credential.
func (g *Guard) principal(r *http.Request) *auth.Principal {
	token, err := bearerToken(r)
	if err != nil {
		return nil
	}
	principal, err := g.tokens.Verify(token)
	if err != nil {
		return nil
	}
	return &principal
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
