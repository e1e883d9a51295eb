package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	portalauth "github.com/PatonaIM/teamified-accounts-sub013"
)

const defaultLoginTimeout = 5 * time.Minute

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the identity provider",
		Long: `Open the identity provider's sign-in page in a browser, wait for the
redirect on the local callback URL, and exchange the provider session for a
portal token pair.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
	cmd.Flags().String("provider", "azure", "Identity provider to sign in with")
	cmd.Flags().Duration("timeout", defaultLoginTimeout, "How long to wait for the browser redirect")
	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	provider, _ := cmd.Flags().GetString("provider")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg := loadConfig()
	orch, sb, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer orch.Close()

	callback, err := url.Parse(orch.CallbackURL())
	if err != nil {
		return fmt.Errorf("invalid callback url: %w", err)
	}

	ln, err := net.Listen("tcp", callback.Host)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", callback.Host, err)
	}

	mux := http.NewServeMux()
	mux.Handle(callback.Path, sb.CallbackHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()

		if err := orch.SignIn(gctx, provider); err != nil {
			slog.Debug("browser opener failed", "error", err)
			// A new authorize URL starts a fresh PKCE verifier, so only the
			// printed URL completes the sign-in.
			manual, urlErr := sb.AuthorizeURL(provider, orch.CallbackURL())
			if urlErr != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Open this URL to continue: %s\n", manual)
		}
		if err := sb.WaitForCallback(gctx); err != nil {
			return fmt.Errorf("sign-in did not complete: %w", err)
		}

		res, err := orch.HandleCallback(gctx)
		if err != nil {
			return err
		}
		printIdentity(cmd, res.User)
		return nil
	})

	return g.Wait()
}

func printIdentity(cmd *cobra.Command, id portalauth.PortalIdentity) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Signed in as %s %s <%s>\n", id.FirstName, id.LastName, id.Email)
	fmt.Fprintf(out, "User ID: %s\n", id.ID)
	for _, r := range id.Roles {
		fmt.Fprintf(out, "Role: %s (%s)\n", r.RoleType, r.Scope)
	}
}
