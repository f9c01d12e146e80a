package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudexplorer/internal/provider"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the supported storage providers",
		Args:  cobra.NoArgs,
		RunE:  runProviders,
	}
}

func newAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List configured accounts",
		Args:  cobra.NoArgs,
		RunE:  runAccounts,
	}
}

type providerJSON struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func runProviders(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	providers := newRegistry(cc).Providers()

	if cc.Flags.JSON {
		out := make([]providerJSON, 0, len(providers))
		for _, p := range providers {
			out = append(out, providerJSON{Name: p.Name(), Color: p.Color().Hex()})
		}

		return printJSON(cc.Out, out)
	}

	color := isTerminal(cc.Out)
	rows := make([][]string, 0, len(providers))

	for _, p := range providers {
		rows = append(rows, []string{swatch("■", p.Color(), color), p.Name(), p.Color().Hex()})
	}

	printTable(cc.Out, []string{" ", "PROVIDER", "COLOR"}, rows)

	return nil
}

type accountJSON struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	URL      string `json:"url,omitempty"`
	Username string `json:"username,omitempty"`
	ReadOnly bool   `json:"read_only"`
	LoggedIn bool   `json:"logged_in"`
	Color    string `json:"color"`
}

func runAccounts(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	reg := newRegistry(cc)

	out := make([]accountJSON, 0, len(cc.Cfg.Accounts))

	for i := range cc.Cfg.Accounts {
		a := &cc.Cfg.Accounts[i]

		p, err := accountProvider(reg, a)
		if err != nil {
			return err
		}

		loggedIn := false
		if path, err := tokenPath(a); err == nil {
			_, statErr := os.Stat(path)
			loggedIn = statErr == nil
		}

		out = append(out, accountJSON{
			Name:     a.Name,
			Provider: p.Name(),
			URL:      a.URL,
			Username: a.Username,
			ReadOnly: a.ReadOnly,
			LoggedIn: loggedIn,
			Color:    p.Color().Hex(),
		})
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, out)
	}

	if len(out) == 0 {
		cc.Statusf("No accounts configured. Add an [[account]] table to %s\n", cc.Cfg.Path)
		return nil
	}

	color := isTerminal(cc.Out)
	rows := make([][]string, 0, len(out))

	for i := range out {
		a := &out[i]
		c, _ := provider.ParseColor(a.Color)
		rows = append(rows, []string{
			swatch("■", c, color), a.Name, a.Provider, a.URL,
			strconv.FormatBool(a.ReadOnly), strconv.FormatBool(a.LoggedIn),
		})
	}

	printTable(cc.Out, []string{" ", "ACCOUNT", "PROVIDER", "URL", "READ-ONLY", "LOGGED-IN"}, rows)

	return nil
}
