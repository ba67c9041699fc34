package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/covenant/pkg/auth"
	"github.com/Mindburn-Labs/covenant/pkg/authority"
	"github.com/Mindburn-Labs/covenant/pkg/config"
	"github.com/Mindburn-Labs/covenant/pkg/tranche"
)

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <milestone>...",
		Short: "Print the commitment hash of each milestone description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, m := range args {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", tranche.Commit(m), m)
			}
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <principal>",
		Short: "Mint an API bearer token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			validator := auth.NewHMACValidator(config.Load().JWTSecret)
			if validator == nil {
				return errors.New("JWT_SECRET is not set")
			}
			token, err := validator.Issue(authority.Principal(args[0]), ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
