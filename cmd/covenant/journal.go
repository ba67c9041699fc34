package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/covenant/pkg/config"
	"github.com/Mindburn-Labs/covenant/pkg/events"
	"github.com/Mindburn-Labs/covenant/pkg/store"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the persisted event journal",
	}
	cmd.AddCommand(newJournalVerifyCmd())
	return cmd
}

func newJournalVerifyCmd() *cobra.Command {
	var (
		dsn        string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the hash chain of a persisted journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = config.Load().JournalDSN
			}
			if dsn == "" {
				return errors.New("--dsn or JOURNAL_DSN is required")
			}
			j, err := openJournal(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			entries, replayErr := store.Replay(cmd.Context(), j)
			head := events.GenesisHash
			if n := len(entries); n > 0 {
				head = entries[n-1].Hash
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				result := map[string]any{"valid": replayErr == nil, "length": len(entries), "head": head}
				if replayErr != nil {
					result["error"] = replayErr.Error()
				}
				data, _ := json.MarshalIndent(result, "", "  ")
				_, _ = fmt.Fprintln(out, string(data))
			} else if replayErr == nil {
				_, _ = fmt.Fprintf(out, "journal verified: %d entries, head %s\n", len(entries), head)
			}
			return replayErr
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "journal DSN (SQLite path or postgres:// URL); defaults to JOURNAL_DSN")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output result as JSON")
	return cmd
}
