package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/taskdeck/deck/internal/config"
	"github.com/taskdeck/deck/internal/debug"
	"github.com/taskdeck/deck/internal/fakeapi"
	"github.com/taskdeck/deck/internal/gateway"
	"github.com/taskdeck/deck/internal/ui"
)

var demoCmd = &cobra.Command{
	Use:     "demo",
	GroupID: "setup",
	Short:   "Run a local in-memory backend to try the board",
	Long: `Serve an in-memory backend with sample issues and repositories. Queued
agent work and analysis jobs advance on their own every --step.

  deck demo &
  deck board --api http://127.0.0.1:8000/api

With --auth the backend requires a session; the cookies it issues are
written to the session file so the other commands can use them.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().String("addr", "", "Listen address (default: demo.addr)")
	demoCmd.Flags().Bool("empty", false, "Start without sample data")
	demoCmd.Flags().Bool("auth", false, "Require a session cookie")
	demoCmd.Flags().Duration("step", 2*time.Second, "How often queued work and jobs advance")
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = config.GetString(config.KeyDemoAddr)
	}
	empty, _ := cmd.Flags().GetBool("empty")
	auth, _ := cmd.Flags().GetBool("auth")
	step, _ := cmd.Flags().GetDuration("step")

	if !debug.Enabled() {
		gin.SetMode(gin.ReleaseMode)
	}
	opts := []fakeapi.Option{fakeapi.WithLogger(cliLogger())}
	if auth {
		opts = append(opts, fakeapi.WithAuth())
	}
	api := fakeapi.New(opts...)
	if !empty {
		api.Seed()
	}

	base := "http://" + addr + fakeapi.Prefix
	if auth {
		access, refresh := api.Login()
		gw, err := gateway.New(base, gateway.WithSessionFile(config.SessionPath()))
		if err != nil {
			return err
		}
		if err := gw.SetTokens(access, refresh); err != nil {
			return err
		}
	}

	srv := &http.Server{Addr: addr, Handler: api, ReadHeaderTimeout: 10 * time.Second}
	g, ctx := errgroup.WithContext(getRootContext())
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		api.Work(ctx, step)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	debug.PrintNormal(stdout, "%s Demo backend on %s\n", ui.RenderPass(ui.IconPass), ui.RenderAccent(base))
	debug.PrintNormal(stdout, "  try: deck board --api %s\n", base)
	if err := g.Wait(); err != nil {
		return fmt.Errorf("demo backend: %w", err)
	}
	return nil
}
