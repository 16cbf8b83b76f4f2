package auth

// Routes names the redirect targets used by the Machine and the Gate.
type Routes struct {
	Unauthenticated string
	PendingApproval string
	DefaultLanding  string
}

// DefaultRoutes returns the application's standard targets.
func DefaultRoutes() Routes {
	return Routes{
		Unauthenticated: "/login",
		PendingApproval: "/pending-approval",
		DefaultLanding:  "/",
	}
}

func (r Routes) withDefaults() Routes {
	def := DefaultRoutes()
	if r.Unauthenticated == "" {
		r.Unauthenticated = def.Unauthenticated
	}
	if r.PendingApproval == "" {
		r.PendingApproval = def.PendingApproval
	}
	if r.DefaultLanding == "" {
		r.DefaultLanding = def.DefaultLanding
	}
	return r
}

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed    bool
	RedirectTo string
}

// Allow is the permitting decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// RedirectTo builds a redirect decision.
func RedirectTo(target string) Decision {
	return Decision{RedirectTo: target}
}

// Gate is the request-time authorization check. It is pure: no I/O and no
// state.
type Gate struct {
	routes Routes
}

// NewGate returns a Gate using routes, blank fields take DefaultRoutes values.
func NewGate(routes Routes) *Gate {
	return &Gate{routes: routes.withDefaults()}
}

// Routes returns the configured targets.
func (g *Gate) Routes() Routes {
	return g.routes
}

// Permit decides whether user may open destination. requiredRole may be
// empty. Only the primary role is compared.
func (g *Gate) Permit(user *CurrentUser, requiredRole, destination string) Decision {
	if user == nil {
		return RedirectTo(g.routes.Unauthenticated)
	}

	if !user.IsApproved && !user.IsAdmin() && destination != g.routes.PendingApproval {
		return RedirectTo(g.routes.PendingApproval)
	}

	if requiredRole != "" && user.PrimaryRole() != requiredRole {
		return RedirectTo(g.routes.DefaultLanding)
	}

	return Allow()
}

// PermitState applies Permit to a machine State. A loading state is never
// permitted; callers render a waiting view before consulting the gate.
func (g *Gate) PermitState(state State, requiredRole, destination string) Decision {
	if state.Loading {
		return RedirectTo(g.routes.Unauthenticated)
	}
	return g.Permit(state.User, requiredRole, destination)
}
