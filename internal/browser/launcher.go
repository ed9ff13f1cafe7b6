package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Strategy is one way of starting a browser. Strategies are tried in order.
type Strategy struct {
	Name    string
	Options []chromedp.ExecAllocatorOption
}

// Launcher starts a browser for a strategy. The returned context drives the
// browser; cancel must terminate it.
type Launcher interface {
	Launch(ctx context.Context, strategy Strategy, userDataDir string) (context.Context, context.CancelFunc, error)
}

// ChromeLauncher starts Chrome through the chromedp exec allocator.
type ChromeLauncher struct {
	Timeout time.Duration
}

// Launch starts a Chrome process with the strategy's options and waits until
// the DevTools connection is up or the launch timeout passes.
func (l *ChromeLauncher) Launch(ctx context.Context, strategy Strategy, userDataDir string) (context.Context, context.CancelFunc, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, strategy.Options...)
	opts = append(opts, chromedp.UserDataDir(userDataDir))

	// The browser outlives the acquiring request; Release owns its lifetime.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		browserCancel()
		allocCancel()
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	started := make(chan error, 1)
	go func() {
		// Running with no actions starts the browser and opens the first tab.
		started <- chromedp.Run(browserCtx)
	}()

	select {
	case err := <-started:
		if err != nil {
			cancel()
			return nil, nil, fmt.Errorf("failed to start browser: %w", err)
		}
		return browserCtx, cancel, nil
	case <-time.After(timeout):
		cancel()
		return nil, nil, fmt.Errorf("browser did not start within %s", timeout)
	case <-ctx.Done():
		cancel()
		return nil, nil, ctx.Err()
	}
}

// StrategyConfig holds the settings used to build the default strategies.
type StrategyConfig struct {
	ExecPath  string
	Headless  bool
	Flags     []string
	UserAgent string
}

// DefaultStrategies returns the preferred strategy (configured binary and full
// flag set) followed by a degraded one (auto-detected binary, chromedp defaults,
// always headless).
func DefaultStrategies(cfg StrategyConfig) []Strategy {
	preferred := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.ExecPath != "" {
		preferred = append(preferred, chromedp.ExecPath(cfg.ExecPath))
	}
	preferred = append(preferred, chromedp.Flag("headless", cfg.Headless))
	for _, flag := range cfg.Flags {
		name, value := splitFlag(flag)
		preferred = append(preferred, chromedp.Flag(name, value))
	}
	if cfg.UserAgent != "" {
		preferred = append(preferred, chromedp.UserAgent(cfg.UserAgent))
	}

	fallback := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	fallback = append(fallback,
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	return []Strategy{
		{Name: "preferred", Options: preferred},
		{Name: "fallback", Options: fallback},
	}
}

// splitFlag turns "name=value" into a chromedp flag; a bare name is a boolean switch.
func splitFlag(flag string) (string, interface{}) {
	flag = strings.TrimPrefix(flag, "--")
	if name, value, ok := strings.Cut(flag, "="); ok {
		return name, value
	}
	return flag, true
}
