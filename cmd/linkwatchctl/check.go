package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/provider"
	"github.com/timmy/linkwatch/internal/service"
)

func newCheckCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "check <account>",
		Short: "Collect recent posts of one account now",
		Long: `Resolves the account (URL, domain path, @handle or username), creates it
if it is not monitored yet, runs one collection and prints the links found.
New links are recorded exactly as the scheduler would record them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := provider.Resolve(args[0])
			if err != nil {
				return err
			}

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.Close(ctx)

			account, _, err := a.Accounts.GetOrCreate(ctx, target.URL, target.Provider, target.Username)
			if err != nil {
				return domain.NewPersistenceError("resolve account", err)
			}
			if limit <= 0 {
				limit = a.Config.Scheduler.MaxItemsFor(account.Provider)
			}

			res, collectErr := a.Collector.Collect(ctx, service.CollectRequest{
				Account: account,
				Limit:   limit,
				Timeout: a.Config.Scheduler.FetchTimeout,
				Worker:  "ctl",
			})
			if domain.IsPersistence(collectErr) {
				return collectErr
			}
			if err := a.Accounts.RecordCheck(ctx, account.ID, collectErr, time.Now().UTC()); err != nil {
				return domain.NewPersistenceError("record account check", err)
			}
			if collectErr != nil {
				return fmt.Errorf("check %s: %w", account.URL, collectErr)
			}

			renderCheck(account, res)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum links to fetch (default: the provider's scheduler cap)")
	return cmd
}

func renderCheck(account *domain.Account, res *service.CollectResult) {
	fresh := make(map[string]bool, len(res.New))
	for _, u := range res.New {
		fresh[u] = true
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("%s (%s)", account.URL, account.Provider))
	t.AppendHeader(table.Row{"#", "Link", "New"})
	for i, u := range res.Links {
		mark := ""
		if fresh[u] {
			mark = "yes"
		}
		t.AppendRow(table.Row{i + 1, u, mark})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d links, %d new, %s", len(res.Links), len(res.New), res.Elapsed.Round(time.Millisecond)), res.Credential})
	t.Render()
}
