package gate

import (
	"net/http"

	"github.com/goliatone/go-router"
	"github.com/pestline/go-auth"
)

// DefaultContextKey is the ctx.Locals key holding the *auth.CurrentUser.
const DefaultContextKey = "current_user"

// StateSource exposes the session state, *auth.Machine satisfies it.
type StateSource interface {
	State() auth.State
}

// Config defines the config for the gate middleware.
type Config struct {
	// State is required.
	State StateSource
	// Gate defaults to auth.NewGate(auth.DefaultRoutes()).
	Gate *auth.Gate
	// RequiredRole restricts the routes to one primary role.
	RequiredRole string
	// Filter skips the middleware when it returns true.
	Filter func(router.Context) bool
	// LoadingHandler renders the neutral waiting response while the session
	// is bootstrapping. Defaults to a 503 JSON body.
	LoadingHandler router.HandlerFunc
	// ForbiddenHandler renders the response for a user redirected back to
	// the route they asked for. Defaults to a 403 JSON body.
	ForbiddenHandler router.HandlerFunc
	// ContextKey defaults to DefaultContextKey.
	ContextKey string
}

// Outcome is what the middleware does with one request.
type Outcome int

const (
	OutcomeAllow Outcome = iota
	OutcomeLoading
	OutcomeRedirect
	OutcomeForbidden
)

// Decide maps the session state and request path to an Outcome. target is
// the redirect route for OutcomeRedirect.
func Decide(g *auth.Gate, state auth.State, requiredRole, path string) (Outcome, string) {
	if state.Loading {
		return OutcomeLoading, ""
	}

	decision := g.Permit(state.User, requiredRole, path)
	if decision.Allowed {
		return OutcomeAllow, ""
	}
	// the target is itself gated for this user
	if decision.RedirectTo == path {
		return OutcomeForbidden, ""
	}
	return OutcomeRedirect, decision.RedirectTo
}

// New creates a gate middleware.
func New(config Config) router.MiddlewareFunc {
	cfg := makeCfg(config)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}

			state := cfg.State.State()
			outcome, target := Decide(cfg.Gate, state, cfg.RequiredRole, ctx.Path())
			switch outcome {
			case OutcomeLoading:
				return cfg.LoadingHandler(ctx)
			case OutcomeForbidden:
				return cfg.ForbiddenHandler(ctx)
			case OutcomeRedirect:
				return ctx.Redirect(target, http.StatusFound)
			}

			ctx.Locals(cfg.ContextKey, state.User)
			return next(ctx)
		}
	}
}

// CurrentUser returns the user stored by the middleware under key, or nil.
func CurrentUser(ctx router.Context, key ...string) *auth.CurrentUser {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	user, _ := ctx.Locals(k).(*auth.CurrentUser)
	return user
}

func makeCfg(config Config) Config {
	cfg := config
	if cfg.State == nil {
		panic("gate middleware: State is required")
	}
	if cfg.Gate == nil {
		cfg.Gate = auth.NewGate(auth.DefaultRoutes())
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.LoadingHandler == nil {
		cfg.LoadingHandler = func(ctx router.Context) error {
			return ctx.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "loading",
			})
		}
	}
	if cfg.ForbiddenHandler == nil {
		cfg.ForbiddenHandler = func(ctx router.Context) error {
			return ctx.JSON(http.StatusForbidden, map[string]string{
				"status": "forbidden",
			})
		}
	}
	return cfg
}
