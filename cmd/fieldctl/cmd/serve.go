package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/pestline/go-auth"
	"github.com/pestline/go-auth/cmd/fieldctl/internal/app"
	"github.com/pestline/go-auth/middleware/gate"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gated screens of this device over HTTP",
	Long: `Starts a local HTTP server that bootstraps the session and gates every
screen: the waiting view while loading, redirects for anonymous, pending and
role-mismatched users.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := newServer(a)

			go a.Machine.Start(ctx)
			go refreshSessions(ctx, a)

			pterm.Info.Printf("Listening on %s\n", a.Config.ListenAddr)
			go srv.Serve(a.Config.ListenAddr)

			<-ctx.Done()
			pterm.Info.Println("Shutting down")
			return nil
		})
	},
}

func newServer(a *app.App) router.Server[*fiber.App] {
	srv := router.NewFiberAdapter(func(f *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			DisableStartupMessage: true,
			StrictRouting:         false,
		}))
	})
	srv.Router().WithLogger(a.GetLogger("router"))
	registerRoutes(srv.Router(), a)
	return srv
}

func registerRoutes(r router.Router[*fiber.App], a *app.App) {
	routes := a.Gate.Routes()

	protected := gate.New(gate.Config{State: a.Machine, Gate: a.Gate})
	adminOnly := gate.New(gate.Config{State: a.Machine, Gate: a.Gate, RequiredRole: auth.RoleAdmin})

	r.Get("/healthz", func(ctx router.Context) error {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get(routes.Unauthenticated, func(ctx router.Context) error {
		return ctx.JSON(http.StatusOK, viewOf(a.Machine.State()))
	})

	r.Post("/session/retry", func(ctx router.Context) error {
		return ctx.JSON(http.StatusOK, viewOf(a.Machine.Retry(ctx.Context())))
	})

	r.Post("/logout", func(ctx router.Context) error {
		if err := a.Machine.Logout(ctx.Context()); err != nil {
			a.Logger.Warn("remote sign out failed", "error", err)
		}
		return ctx.Redirect(routes.Unauthenticated, http.StatusSeeOther)
	})

	r.Get(routes.PendingApproval, func(ctx router.Context) error {
		return ctx.JSON(http.StatusOK, map[string]string{
			"message": "Your account is waiting for approval.",
			"email":   gate.CurrentUser(ctx).Email,
		})
	}, protected)

	r.Get(routes.DefaultLanding, func(ctx router.Context) error {
		return ctx.JSON(http.StatusOK, gate.CurrentUser(ctx))
	}, protected)

	r.Get("/admin", func(ctx router.Context) error {
		return ctx.JSON(http.StatusOK, map[string]string{"admin": gate.CurrentUser(ctx).Email})
	}, adminOnly)
}

// refreshSessions reissues the session token at half its lifetime.
func refreshSessions(ctx context.Context, a *app.App) {
	interval := a.Config.SessionTTL / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Sessions.Refresh(ctx); err != nil {
				a.Logger.Warn("session refresh failed", "error", err)
			}
		}
	}
}
