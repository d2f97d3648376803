package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/audiolibrelab/xlrbridge/internal/observe"
	"github.com/audiolibrelab/xlrbridge/internal/server"
	"github.com/audiolibrelab/xlrbridge/internal/service"
)

// version is stamped at build time with -ldflags "-X".
var version = "dev"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a routing session",
	Long: `Discover the hardware and its virtual endpoints, claim the hardware,
register every callback and route audio until interrupted (Ctrl+C or SIGTERM).

Use --listen to also serve status, health and metrics over HTTP.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		if listen == "" {
			listen = cfg.Server.Listen
		}
		return runSession(cmd.Context(), listen)
	},
}

func init() {
	runCmd.Flags().String("listen", "", "address for the status server (overrides config, empty disables)")
}

// runSession starts a session and blocks until ctx is cancelled, a signal
// arrives or the status server fails. The session is always stopped and the
// host closed before returning.
func runSession(parent context.Context, listen string) (err error) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := uuid.NewString()
	log := slog.With("session", sessionID)

	mp, shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		SessionID:      sessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, shutdownMetrics(sctx))
	}()

	h, err := openHost(cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, h.Close()) }()

	svc, err := service.New(cfg, h,
		service.WithSessionID(sessionID),
		service.WithMeterProvider(mp))
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	log.Info("Routing started - press Ctrl+C to stop", "hardware", svc.GetStatus().Hardware)

	g, gctx := errgroup.WithContext(ctx)
	if listen != "" {
		srv := server.New(svc, listen)
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	waitErr := g.Wait()

	log.Info("Stopping session...")
	if serr := svc.Stop(); serr != nil {
		waitErr = multierr.Append(waitErr, fmt.Errorf("failed to stop session: %w", serr))
	}
	printSummary(svc.GetStatus())
	return waitErr
}

func printSummary(st service.Status) {
	fmt.Printf("Session %s: %s\n", st.SessionID, st.State)
	for _, u := range st.Router.Units {
		fmt.Printf("  %-8s %-10s %-8s calls=%d failures=%d released=%d\n",
			u.Direction, u.Channel, u.Role, u.Calls, u.Failures, u.Released)
	}
}
