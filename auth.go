package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Bling authorization",
	}

	cmd.AddCommand(newAuthURLCmd())
	cmd.AddCommand(newAuthExchangeCmd())
	cmd.AddCommand(newAuthStatusCmd())

	return cmd
}

func newAuthURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the URL that grants this station access to Bling",
		Long: `Print the Bling authorization URL. Open it, approve access, and pass the
code from the redirect to "blingpick auth exchange".`,
		Args: cobra.NoArgs,
		RunE: runAuthURL,
	}
}

func runAuthURL(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	state, err := randomState()
	if err != nil {
		return err
	}

	tokens := newTokenManager(cc.Cfg, cc.Logger)
	fmt.Fprintln(cmd.OutOrStdout(), tokens.AuthorizeURL(state))
	cc.Statusf("state: %s\n", state)

	return nil
}

func newAuthExchangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exchange <code>",
		Short: "Trade an authorization code for tokens and save them",
		Args:  cobra.ExactArgs(1),
		RunE:  runAuthExchange,
	}
}

func runAuthExchange(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	tokens := newTokenManager(cc.Cfg, cc.Logger)
	if err := tokens.Exchange(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	cc.Statusf("Tokens saved to %s\n", cc.Cfg.Bling.TokenPath)

	return nil
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored token state",
		Args:  cobra.NoArgs,
		RunE:  runAuthStatus,
	}
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	st := newTokenManager(cc.Cfg, cc.Logger).Status()
	out := cmd.OutOrStdout()

	if cc.Flags.JSON {
		return printJSON(out, st)
	}

	printTable(out, []string{"FIELD", "VALUE"}, [][]string{
		{"token file", cc.Cfg.Bling.TokenPath},
		{"configured", yesNo(st.Configured)},
		{"access token", yesNo(st.HasAccessToken)},
		{"refresh token", yesNo(st.HasRefreshToken)},
		{"valid", yesNo(st.Valid)},
		{"expires", formatTime(st.ExpiresAt)},
	})

	return nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating OAuth state: %w", err)
	}

	return hex.EncodeToString(b), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}
