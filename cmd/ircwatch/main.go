package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ircwatch/internal/app"
	"ircwatch/internal/config"
	"ircwatch/internal/notify"
	"ircwatch/internal/trigger"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ircwatch", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to optional YAML config file")
	envFile := fs.String("env-file", "", "path to optional .env file (default: ./.env if present)")
	testNotify := fs.Bool("test-notify", false, "send a test notification and exit")
	testTrigger := fs.String("test-trigger", "", "evaluate the trigger against `STRING` and exit")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Printf("ircwatch %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	cfg, err := config.Load(*cfgPath, *envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal: config:", err)
		if *testTrigger != "" {
			return 2
		}
		return 1
	}

	switch {
	case *testTrigger != "":
		return runTestTrigger(cfg, *testTrigger)
	case *testNotify:
		return runTestNotify(cfg)
	default:
		return runDaemon(cfg)
	}
}

// runTestTrigger evaluates the configured phrase against a literal string,
// for scripted verification. Exit 0 on match, 1 on no match, 2 on config
// error.
func runTestTrigger(cfg config.Config, input string) int {
	m, err := trigger.NewMatcher(cfg.Trigger.Phrase, cfg.Trigger.CaseSensitive)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}
	if m.Match(input) {
		fmt.Printf("match: phrase %q found in %q (case-sensitive: %v)\n", m.Phrase(), input, m.CaseSensitive())
		return 0
	}
	fmt.Printf("no match: phrase %q not found in %q (case-sensitive: %v)\n", m.Phrase(), input, m.CaseSensitive())
	return 1
}

// runTestNotify exercises the provider path end to end without starting
// the IRC session.
func runTestNotify(cfg config.Config) int {
	client := notify.NewClient(cfg.Pushover.Endpoint, cfg.Pushover.AppToken, cfg.Pushover.UserKey)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Notify.Timeout)
	defer cancel()

	err := client.Send(ctx, notify.Message{
		Title:    cfg.Notify.Title + " (test)",
		Body:     "Test notification from ircwatch",
		Priority: 0,
		Sound:    "pushover",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "test notification failed:", err)
		return 1
	}
	fmt.Println("test notification sent")
	return 0
}

func runDaemon(cfg config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, version)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		return 1
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx)
	return 0
}
