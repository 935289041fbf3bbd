package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/launcher-accounts/internal/api"
	"github.com/spf13/cobra"
)

func newAccountsCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account", "acc"},
		Short:   "List and manage stored accounts",
	}
	c.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored accounts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				all, err := a.svc.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ACTIVE\tID\tUSERNAME\tTYPE\tEXPIRES\tTOKEN")
				for _, acc := range all {
					mark, kind := "", "online"
					if acc.Active {
						mark = "*"
					}
					if acc.Offline() {
						kind = "offline"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						mark, acc.ID(), acc.Profile.Name, kind,
						acc.Expires.Local().Format(time.DateTime), api.MaskToken(acc.AccessToken))
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "default",
			Short: "Print the active account id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				id, ok, err := a.svc.GetDefaultUser(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no accounts")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "use <id>",
			Short: "Make an account active",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return err
				}
				return a.svc.SetDefaultUser(cmd.Context(), id)
			},
		},
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Remove an account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return err
				}
				return a.svc.RemoveUser(cmd.Context(), id)
			},
		},
		&cobra.Command{
			Use:   "offline <username>",
			Short: "Create an offline account and make it active",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				acc, err := a.svc.CreateOfflineCredentials(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created offline account %s (%s)\n", acc.Profile.Name, acc.ID())
				return nil
			},
		},
	)
	return c
}
