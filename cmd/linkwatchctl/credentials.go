package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/timmy/linkwatch/internal/credential"
	"github.com/timmy/linkwatch/internal/domain"
)

func newCredentialsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Inspect the cookie credential pool",
	}
	cmd.AddCommand(newCredentialsStatsCommand(), newCredentialsSyncCommand())
	return cmd
}

func newCredentialsStatsCommand() *cobra.Command {
	var providerName string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show active and burnt credentials per provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.Close(ctx)

			var stats []*credential.Stats
			if providerName != "" {
				p := domain.Provider(providerName)
				if !p.Valid() {
					return fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, providerName)
				}
				st, err := a.Credentials.Stats(ctx, p)
				if err != nil {
					return err
				}
				stats = []*credential.Stats{st}
			} else if stats, err = a.Credentials.AllStats(ctx); err != nil {
				return err
			}

			renderStats(stats, a.Credentials.Threshold())
			return nil
		},
	}
	cmd.Flags().StringVar(&providerName, "provider", "", "only show this provider")
	return cmd
}

func newCredentialsSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Register cookie files found in the credentials directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			// loadApp already syncs; report what the pool looks like afterwards.
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.Close(ctx)

			stats, err := a.Credentials.AllStats(ctx)
			if err != nil {
				return err
			}
			total := 0
			for _, st := range stats {
				total += st.ActiveCount
			}
			fmt.Printf("%d active credentials in %s\n", total, a.Config.Credentials.Dir)
			return nil
		},
	}
}

func renderStats(stats []*credential.Stats, threshold int) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Provider", "Active", "Burnt", fmt.Sprintf("Failing (of %d)", threshold)})
	for _, st := range stats {
		failing := make([]string, 0, len(st.Failures))
		for name, n := range st.Failures {
			failing = append(failing, fmt.Sprintf("%s:%d", name, n))
		}
		sort.Strings(failing)
		t.AppendRow(table.Row{st.Provider, st.ActiveCount, st.BurntCount, strings.Join(failing, ", ")})
	}
	t.Render()
}
