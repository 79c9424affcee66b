package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/taskdeck/deck/internal/config"
	"github.com/taskdeck/deck/internal/ui"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	GroupID: "setup",
	Short:   "Manage the backend session",
	Long: `The backend signs in through GitHub in the browser and keeps the session
in two cookies, access_token and refresh_token. deck stores them in its
session file and refreshes the access token when it expires.`,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the signed-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := newClient(cliLogger())
		if err != nil {
			return err
		}
		u, err := requireSession(getRootContext(), gw)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(u)
			return nil
		}
		name := u.Login
		if u.Name != nil && *u.Name != "" {
			name = fmt.Sprintf("%s (%s)", *u.Name, u.Login)
		}
		fmt.Fprintf(stdout, "%s Signed in to %s as %s\n", ui.RenderPass(ui.IconPass), gw.BaseURL(), ui.RenderAccent(name))
		fmt.Fprintf(stdout, "  session: %s\n", ui.RenderMuted(config.SessionPath()))
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget the stored cookies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := newClient(cliLogger())
		if err != nil {
			return err
		}
		if err := gw.Logout(getRootContext()); err != nil {
			// The local session is gone either way.
			WarnError("server logout failed: %v", err)
		}
		debugPrint("%s Signed out\n", ui.RenderPass(ui.IconPass))
		return nil
	},
}

var authSetCookieCmd = &cobra.Command{
	Use:   "set-cookie [access_token] [refresh_token]",
	Short: "Store session cookies copied from the browser",
	Long: `Store the access_token and refresh_token cookies of a browser session.

Without arguments the values are read from a form (or, when stdin is not a
terminal, as two lines from stdin).`,
	Args: cobra.MaximumNArgs(2),
	RunE: runSetCookie,
}

func init() {
	authCmd.AddCommand(authStatusCmd, authLogoutCmd, authSetCookieCmd)
	rootCmd.AddCommand(authCmd)
}

// debugPrint prints unless --quiet or --json.
func debugPrint(format string, args ...interface{}) {
	if jsonOutput || config.GetBool(config.KeyQuiet) {
		return
	}
	fmt.Fprintf(stdout, format, args...)
}

func readTokens(args []string) (access, refresh string, err error) {
	if len(args) > 0 {
		access = args[0]
	}
	if len(args) > 1 {
		refresh = args[1]
	}
	if access != "" {
		return access, refresh, nil
	}
	if !ui.IsTerminal() {
		sc := bufio.NewScanner(os.Stdin)
		if sc.Scan() {
			access = strings.TrimSpace(sc.Text())
		}
		if sc.Scan() {
			refresh = strings.TrimSpace(sc.Text())
		}
		return access, refresh, sc.Err()
	}
	err = huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("access_token").EchoMode(huh.EchoModePassword).Value(&access),
		huh.NewInput().Title("refresh_token").EchoMode(huh.EchoModePassword).Value(&refresh),
	)).Run()
	return strings.TrimSpace(access), strings.TrimSpace(refresh), err
}

func runSetCookie(cmd *cobra.Command, args []string) error {
	access, refresh, err := readTokens(args)
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return err
	}
	if access == "" && refresh == "" {
		return errors.New("no cookie values given")
	}
	gw, err := newClient(cliLogger())
	if err != nil {
		return err
	}
	if err := gw.SetTokens(access, refresh); err != nil {
		return err
	}
	u, err := requireSession(getRootContext(), gw)
	if err != nil {
		WarnError("cookies stored, but the backend did not accept them: %v", err)
		return nil
	}
	debugPrint("%s Signed in as %s\n", ui.RenderPass(ui.IconPass), ui.RenderAccent(u.Login))
	return nil
}
