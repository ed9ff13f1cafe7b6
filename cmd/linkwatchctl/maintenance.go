package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/timmy/linkwatch/internal/app"
	"github.com/timmy/linkwatch/internal/domain"
)

func newReapCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Kill browser processes left behind by a crashed server",
		Long: `Terminates every browser started under the server's session root and removes
their profile directories. A live server's workers would lose their sessions, so
reap refuses to run while the persisted scheduler status is "running". Pass
--force once the server is known to be down.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.Close(ctx)

			if err := ensureSchedulerIdle(ctx, a.Settings, force); err != nil {
				return err
			}

			server := a.Config.Browser
			server.SessionRoot = a.serverSessionRoot
			sessions, err := app.NewSessionManager(server, nil)
			if err != nil {
				return err
			}
			n, err := sessions.ForceReleaseAll(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("reaped %d browser processes\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "reap even if the scheduler is persisted as running")
	return cmd
}

// settingReader reads persisted settings.
type settingReader interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// errServerMayBeRunning is returned by commands that would disturb a live server.
var errServerMayBeRunning = errors.New("the scheduler is persisted as running, the server may be live")

// ensureSchedulerIdle fails unless force is set or the persisted scheduler
// status is something other than running.
func ensureSchedulerIdle(ctx context.Context, settings settingReader, force bool) error {
	if force {
		return nil
	}
	status, ok, err := settings.Get(ctx, domain.SettingSchedulerStatus)
	if err != nil {
		return domain.NewPersistenceError("read scheduler status", err)
	}
	if ok && status == domain.SchedulerRunning {
		return fmt.Errorf("%w: stop it first or pass --force", errServerMayBeRunning)
	}
	return nil
}

func newSchedulerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Read or change the persisted scheduler status",
		Long: `The server reads the persisted status when it starts: "running" resumes the
scheduler, "stopped" keeps it idle. Use the HTTP API to control a live server.`,
	}
	cmd.AddCommand(
		newSchedulerSetCommand("start", domain.SchedulerRunning),
		newSchedulerSetCommand("stop", domain.SchedulerStopped),
		&cobra.Command{
			Use:   "status",
			Short: "Print the persisted scheduler status",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := loadApp(cmd)
				if err != nil {
					return err
				}
				ctx := cmd.Context()
				defer a.Close(ctx)

				st, err := a.Scheduler.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("persisted: %s\n", st.PersistedStatus)
				for _, s := range []domain.AccountStatus{domain.AccountStatusActive, domain.AccountStatusError, domain.AccountStatusPaused} {
					fmt.Printf("%s accounts: %d\n", s, st.Accounts[s])
				}
				return nil
			},
		},
	)
	return cmd
}

func newSchedulerSetCommand(use, status string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Persist scheduler status %q", status),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.Close(ctx)

			if err := a.Settings.Set(ctx, domain.SettingSchedulerStatus, status); err != nil {
				return domain.NewPersistenceError("persist scheduler status", err)
			}
			fmt.Printf("scheduler status set to %s\n", status)
			return nil
		},
	}
}
