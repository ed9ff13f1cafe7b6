package browser

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/timmy/linkwatch/internal/logger"
)

// Process is a discovered top-level browser process.
type Process struct {
	PID       int32
	SessionID string
}

// Reaper finds and terminates browser processes started under a session root.
type Reaper interface {
	// Discover returns the top-level browser processes whose user-data dir
	// lives under root.
	Discover(ctx context.Context, root string) ([]Process, error)
	// Reap terminates every process (browser and helpers) whose command line
	// references a session dir under root. Returns the number terminated.
	Reap(ctx context.Context, root string) (int, error)
}

// ProcessReaper implements Reaper on top of the OS process table.
type ProcessReaper struct {
	// Grace is how long a process gets to exit after SIGTERM before it is killed.
	Grace time.Duration
}

// NewProcessReaper creates a ProcessReaper with a two second grace period.
func NewProcessReaper() *ProcessReaper {
	return &ProcessReaper{Grace: 2 * time.Second}
}

type marked struct {
	proc      *process.Process
	sessionID string
	main      bool
}

func (r *ProcessReaper) scan(ctx context.Context, root string) ([]marked, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	marker := filepath.Join(root, SessionDirPrefix)
	var out []marked
	for _, p := range procs {
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || len(args) == 0 {
			continue
		}
		sessionID, main, ok := matchSession(args, marker)
		if !ok {
			continue
		}
		out = append(out, marked{proc: p, sessionID: sessionID, main: main})
	}
	return out, nil
}

// matchSession reports whether args belong to a browser started with a
// user-data dir under marker, the session ID encoded in that dir, and whether
// the process is the browser itself rather than a renderer/helper.
func matchSession(args []string, marker string) (string, bool, bool) {
	sessionID := ""
	main := true
	for _, arg := range args {
		if strings.HasPrefix(arg, "--type=") {
			main = false
		}
		if !strings.HasPrefix(arg, "--user-data-dir=") {
			continue
		}
		dir := strings.Trim(strings.TrimPrefix(arg, "--user-data-dir="), `"`)
		if !strings.HasPrefix(dir, marker) {
			continue
		}
		sessionID = strings.SplitN(strings.TrimPrefix(dir, marker), string(filepath.Separator), 2)[0]
	}
	if sessionID == "" {
		return "", false, false
	}
	return sessionID, main, true
}

// Discover implements Reaper.
func (r *ProcessReaper) Discover(ctx context.Context, root string) ([]Process, error) {
	found, err := r.scan(ctx, root)
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(found))
	for _, m := range found {
		if m.main {
			out = append(out, Process{PID: m.proc.Pid, SessionID: m.sessionID})
		}
	}
	return out, nil
}

// Reap implements Reaper: SIGTERM first, SIGKILL for processes still running
// after the grace period.
func (r *ProcessReaper) Reap(ctx context.Context, root string) (int, error) {
	found, err := r.scan(ctx, root)
	if err != nil {
		return 0, err
	}
	if len(found) == 0 {
		return 0, nil
	}

	log := logger.FromContext(ctx).WithField(logger.FieldComponent, "reaper")
	for _, m := range found {
		if err := m.proc.TerminateWithContext(ctx); err != nil {
			log.WithError(err).WithField("pid", m.proc.Pid).Debug("Terminate failed")
		}
	}

	deadline := time.Now().Add(r.Grace)
	for time.Now().Before(deadline) {
		if !anyRunning(ctx, found) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	for _, m := range found {
		if running, _ := m.proc.IsRunningWithContext(ctx); running {
			if err := m.proc.KillWithContext(ctx); err != nil {
				log.WithError(err).WithField("pid", m.proc.Pid).Warn("Kill failed")
			}
		}
	}

	log.WithField(logger.FieldCount, len(found)).Info("Terminated browser processes")
	return len(found), nil
}

func anyRunning(ctx context.Context, procs []marked) bool {
	for _, m := range procs {
		if running, _ := m.proc.IsRunningWithContext(ctx); running {
			return true
		}
	}
	return false
}
