package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudexplorer/internal/auth"
	"github.com/tonimelisma/cloudexplorer/internal/config"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save credentials for an account",
		Long: `Save credentials for the selected account.

OneDrive accounts sign in with Microsoft: the device code flow by default,
or a browser redirect with --browser. WebDav and Sharepoint accounts store a
username and password; the password is read from standard input.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().Bool("browser", false, "sign in through the browser instead of a device code")
	cmd.Flags().String("username", "", "username for WebDav and Sharepoint (defaults to the account's username)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove saved credentials for an account",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	a, err := cc.Cfg.SelectedAccount()
	if err != nil {
		return err
	}

	p, err := accountProvider(newRegistry(cc), a)
	if err != nil {
		return err
	}

	cc.Logger.Info("login started", slog.String("account", a.Name), slog.String("provider", p.Name()))

	if usesOAuth(p) {
		o, err := newOAuth(a, cc.Logger)
		if err != nil {
			return err
		}

		browser, _ := cmd.Flags().GetBool("browser")
		if browser {
			_, err = o.LoginWithBrowser(ctx, openBrowser, cc.Err)
		} else {
			_, err = o.Login(ctx, func(da auth.DeviceAuth) {
				// Always visible, even with --quiet.
				fmt.Fprintf(cc.Err, "To sign in, visit: %s\n", da.VerificationURI)
				fmt.Fprintf(cc.Err, "Enter code: %s\n", da.UserCode)
			})
		}

		if err != nil {
			return err
		}

		cc.Statusf("Logged in to %s.\n", a.Name)

		return nil
	}

	username, _ := cmd.Flags().GetString("username")

	return loginBasic(cc, a, username, cmd.InOrStdin())
}

// loginBasic stores a username and a password read from in.
func loginBasic(cc *CLIContext, a *config.Account, username string, in io.Reader) error {
	if username == "" {
		username = a.Username
	}

	if username == "" {
		return errors.New("a username is required: pass --username or set username in the account")
	}

	cc.Statusf("Password for %s@%s: ", username, a.Name)

	password, err := readLine(in)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	cc.Statusf("\n")

	path, err := tokenPath(a)
	if err != nil {
		return err
	}

	if err := auth.SaveBasic(path, a.Provider, &auth.Basic{Username: username, Password: password}); err != nil {
		return err
	}

	cc.Logger.Info("credentials saved", slog.String("account", a.Name), slog.String("path", path))
	cc.Statusf("Saved credentials for %s.\n", a.Name)

	return nil
}

// readLine returns the first line of r without its line ending.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	a, err := cc.Cfg.SelectedAccount()
	if err != nil {
		return err
	}

	path, err := tokenPath(a)
	if err != nil {
		return err
	}

	removed, err := auth.RemoveCredentials(path)
	if err != nil {
		return err
	}

	cc.Logger.Info("logout", slog.String("account", a.Name), slog.Bool("removed", removed))

	if removed {
		cc.Statusf("Logged out of %s.\n", a.Name)
	} else {
		cc.Statusf("No saved credentials for %s.\n", a.Name)
	}

	return nil
}

// openBrowser launches the platform URL handler.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}
