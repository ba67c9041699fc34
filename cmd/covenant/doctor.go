package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/covenant/pkg/config"
	"github.com/Mindburn-Labs/covenant/pkg/policy"
)

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "warn", "fail"
	Detail string `json:"detail,omitempty"`
}

func newDoctorCmd() *cobra.Command {
	var (
		profilePath string
		jsonOutput  bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and profile before serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if profilePath != "" {
				cfg.ProfilePath = profilePath
			}
			results := runChecks(cfg)
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				printChecks(cmd.OutOrStdout(), results)
			}
			for _, r := range results {
				if r.Status == "fail" {
					return fmt.Errorf("doctor found problems")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", "", "deployment profile (YAML); overrides PROFILE_PATH")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output results as JSON")
	return cmd
}

func runChecks(cfg *config.Config) []checkResult {
	results := []checkResult{{
		Name:   "go_runtime",
		Status: "ok",
		Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}}

	profile, err := loadProfile(cfg.ProfilePath)
	switch {
	case err != nil:
		results = append(results, checkResult{Name: "profile", Status: "fail", Detail: err.Error()})
	case cfg.ProfilePath == "":
		results = append(results, checkResult{Name: "profile", Status: "warn", Detail: "PROFILE_PATH not set, using the single-operator dev profile"})
	default:
		results = append(results, checkResult{Name: "profile", Status: "ok", Detail: fmt.Sprintf("%s (schema %s)", profile.Name, profile.SchemaVersion)})
	}

	if profile != nil {
		if _, err := policy.NewGate(profile.Invariants.Expression, policy.NewStaticSource(policy.Health{})); err != nil {
			results = append(results, checkResult{Name: "invariants", Status: "fail", Detail: err.Error()})
		} else {
			results = append(results, checkResult{Name: "invariants", Status: "ok", Detail: "expression compiles"})
		}
		if profile.Invariants.Source == "redis" && cfg.RedisAddr == "" {
			results = append(results, checkResult{Name: "redis", Status: "fail", Detail: "profile reads health from redis but REDIS_ADDR is not set"})
		}
	}

	if cfg.JWTSecret == "" {
		results = append(results, checkResult{Name: "jwt_secret", Status: "warn", Detail: "JWT_SECRET not set; authenticated routes will refuse every request"})
	} else {
		results = append(results, checkResult{Name: "jwt_secret", Status: "ok", Detail: "set"})
	}

	if cfg.DatabaseURL == "" {
		results = append(results, checkResult{Name: "database_url", Status: "warn", Detail: "DATABASE_URL not set, balances are held in memory"})
	} else {
		results = append(results, checkResult{Name: "database_url", Status: "ok", Detail: "set"})
	}

	if cfg.JournalDSN == "" {
		results = append(results, checkResult{Name: "journal_dsn", Status: "warn", Detail: "JOURNAL_DSN not set, the event journal is not persisted"})
	} else {
		results = append(results, checkResult{Name: "journal_dsn", Status: "ok", Detail: "set"})
	}
	return results
}

func printChecks(w io.Writer, results []checkResult) {
	ok := color.New(color.FgGreen).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()

	_, _ = fmt.Fprintln(w, color.New(color.Bold).Sprint("covenant doctor"))
	for _, r := range results {
		var mark string
		switch r.Status {
		case "ok":
			mark = ok("✓")
		case "warn":
			mark = warn("!")
		default:
			mark = fail("✗")
		}
		_, _ = fmt.Fprintf(w, "  %s %-14s %s\n", mark, r.Name, r.Detail)
	}
}
