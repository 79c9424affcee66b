package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/taskdeck/deck/internal/board"
	"github.com/taskdeck/deck/internal/cache"
	"github.com/taskdeck/deck/internal/config"
	"github.com/taskdeck/deck/internal/debug"
	"github.com/taskdeck/deck/internal/gateway"
	"github.com/taskdeck/deck/internal/telemetry"
	"github.com/taskdeck/deck/internal/types"
	"github.com/taskdeck/deck/internal/ui"
)

// cliLogger logs to stderr at the level chosen by --verbose/--quiet.
func cliLogger() *slog.Logger {
	if !debug.Enabled() {
		return debug.Discard()
	}
	return debug.NewLogger(os.Stderr)
}

// newClient builds a gateway client for the configured backend, seeded from
// the session file.
func newClient(logger *slog.Logger) (*gateway.Client, error) {
	return gateway.New(config.GetString(config.KeyAPIURL),
		gateway.WithLogger(logger),
		gateway.WithSessionFile(config.SessionPath()),
		gateway.WithTimeout(config.GetDuration(config.KeyAPITimeout)),
	)
}

// newCache builds the polling cache shared by the board and the job poller.
func newCache(logger *slog.Logger) *cache.Cache {
	return cache.New(cache.WithLogger(logger), cache.WithMetrics(telemetry.NewCacheMetrics()))
}

// requireSession checks the identity endpoint so commands fail early with a
// sign-in hint instead of on their first request.
func requireSession(ctx context.Context, gw *gateway.Client) (*types.User, error) {
	u, err := gw.Me(ctx)
	if err != nil {
		if gateway.IsAuth(err) {
			return nil, errSignedOut
		}
		return nil, err
	}
	if u == nil {
		return nil, errSignedOut
	}
	return u, nil
}

// consoleNotifier prints board notices to stderr. Success notices are
// suppressed by --quiet and under --json.
type consoleNotifier struct{}

func (consoleNotifier) Notify(n board.Notice) {
	switch n.Level {
	case board.Error:
		fmt.Fprintln(os.Stderr, ui.RenderFail(ui.IconFail+" "+n.Message))
	case board.Success:
		if !jsonOutput {
			debug.PrintNormal(os.Stderr, "%s\n", ui.RenderPass(ui.IconPass+" "+n.Message))
		}
	default:
		if !jsonOutput {
			debug.PrintNormal(os.Stderr, "%s\n", n.Message)
		}
	}
}
