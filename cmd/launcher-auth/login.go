package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in with the identity provider and make the account active",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			flow, err := a.svc.BeginLogin(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			uri := flow.VerificationURI
			if flow.VerificationURIComplete != "" {
				uri = flow.VerificationURIComplete
			}
			fmt.Fprintf(out, "Open %s and enter the code %s\n", uri, flow.UserCode)
			fmt.Fprintf(out, "The code expires at %s.\n", flow.ExpiresAt.Local().Format("15:04:05"))
			fmt.Fprint(out, "Paste the one-time code shown after sign-in: ")

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.Wrap(err, "read code")
			}

			creds, err := a.svc.FinishLogin(ctx, strings.TrimSpace(line), flow)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Logged in as %s (%s)\n", creds.Profile.Name, creds.ID())
			return nil
		},
	}
}
