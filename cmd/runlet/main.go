package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/runlet/internal/api"
	"github.com/mattjoyce/runlet/internal/config"
	"github.com/mattjoyce/runlet/internal/doctor"
	"github.com/mattjoyce/runlet/internal/events"
	"github.com/mattjoyce/runlet/internal/execute"
	"github.com/mattjoyce/runlet/internal/history"
	"github.com/mattjoyce/runlet/internal/lock"
	"github.com/mattjoyce/runlet/internal/log"
	"github.com/mattjoyce/runlet/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Exit codes for engine faults, matching timeout(1) and shell conventions.
const (
	exitConfigError = 2
	exitTimeout     = 124
	exitLaunch      = 126
	exitUnavailable = 127
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "run":
		if hasHelpFlag(args) {
			printRunHelp()
			return 0
		}
		return runRun(args)
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "history":
		return runHistoryNoun(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "config":
		return runConfigNoun(args)
	case "doctor":
		if hasHelpFlag(args) {
			printDoctorHelp()
			return 0
		}
		return runDoctor(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`runlet - Child process execution with live output streaming

Usage:
  runlet <command> [flags]

Commands:
  run             Execute a command, stream its output, exit with its code
  serve           Run the HTTP execution service in the foreground
  history         Inspect recorded runs (list, show, prune)
  watch           Real-time run monitoring TUI against a running service
  config          Configuration tooling (check, hash, show)
  doctor          Validate configuration and host readiness
  version         Show version information

Use 'runlet <command> --help' for command-specific flags.
`)
}

// --- run ---

// envFlag collects repeatable --env KEY=VALUE flags.
type envFlag map[string]string

func (e envFlag) String() string { return "" }

func (e envFlag) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected KEY=VALUE, got %q", v)
	}
	e[key] = value
	return nil
}

func printRunHelp() {
	fmt.Println("Usage: runlet run [flags] -- <command> [args...]")
	fmt.Println()
	fmt.Println("Executes the command, streams stdout/stderr as produced, and exits")
	fmt.Println("with the child's exit code. 124 means the execution deadline passed.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --config PATH      Configuration file (default: $RUNLET_CONFIG or ./runlet.yaml)")
	fmt.Println("  --timeout DUR      Wall-clock budget, e.g. 30s (default: engine.default_timeout)")
	fmt.Println("  --workdir DIR      Child working directory")
	fmt.Println("  --env KEY=VALUE    Environment override, repeatable")
	fmt.Println("  --stdin TEXT       Write TEXT to the child's stdin when it is writable")
	fmt.Println("  --quiet            Do not stream output (result is still recorded)")
	fmt.Println("  --json             Print the full result as JSON instead of raw output")
	fmt.Println("  --no-record        Skip recording the run in history")
}

func runRun(args []string) int {
	env := envFlag{}
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	timeout := fs.Duration("timeout", 0, "Wall-clock budget (0 uses the configured default)")
	workdir := fs.String("workdir", "", "Child working directory")
	stdinText := fs.String("stdin", "", "Text to write to the child's stdin")
	quiet := fs.Bool("quiet", false, "Do not stream output")
	jsonOut := fs.Bool("json", false, "Print result as JSON")
	noRecord := fs.Bool("no-record", false, "Skip history recording")
	fs.Var(env, "env", "Environment override KEY=VALUE (repeatable)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	argv := fs.Args()
	if len(argv) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: runlet run [flags] -- <command> [args...]")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)

	if *timeout == 0 {
		*timeout = cfg.Engine.DefaultTimeout
	}

	cmd := execute.Command{
		Argv:    argv,
		Dir:     *workdir,
		Env:     env,
		Timeout: *timeout,
	}

	stream := !*quiet && !*jsonOut
	stdinSent := false
	if stream || *stdinText != "" {
		if stream {
			cmd.Notify = append(cmd.Notify, execute.Stdout, execute.Stderr)
		}
		if *stdinText != "" {
			cmd.Notify = append(cmd.Notify, execute.Stdin)
		}
		cmd.OnEvent = func(ev execute.Event) {
			switch ev.Stream {
			case execute.Stdout:
				os.Stdout.Write(ev.Data)
			case execute.Stderr:
				os.Stderr.Write(ev.Data)
			case execute.Stdin:
				if !stdinSent {
					fmt.Fprint(ev.Writer, *stdinText)
					stdinSent = true
				}
			}
		}
	}

	started := time.Now()
	res, runErr := execute.New().Run(cmd)
	finished := time.Now()

	if !*noRecord {
		recordLocalRun(cfg, argv, *workdir, started, finished, res, runErr)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "runlet: %v\n", runErr)
		return faultExitCode(runErr)
	}

	if *jsonOut {
		data, err := json.MarshalIndent(map[string]any{
			"exit_code":   res.ExitCode,
			"stdout":      res.Stdout,
			"stderr":      res.Stderr,
			"duration_ms": finished.Sub(started).Milliseconds(),
		}, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render result: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	}

	return res.ExitCode
}

// recordLocalRun persists a CLI-initiated run. Best-effort: a broken
// history database must not mask the child's result.
func recordLocalRun(cfg *config.Config, argv []string, workdir string, started, finished time.Time, res *execute.Result, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		log.Warn("history unavailable, run not recorded", "path", cfg.History.Path, "error", err)
		return
	}
	defer store.Close()

	run := &history.Run{
		Argv:       argv,
		Workdir:    workdir,
		StartedAt:  started,
		FinishedAt: finished,
	}
	switch {
	case runErr == nil && res.ExitCode == 0:
		run.Status = history.StatusSucceeded
		run.ExitCode = res.ExitCode
		run.Stdout = res.Stdout
		run.Stderr = res.Stderr
	case runErr == nil:
		run.Status = history.StatusFailed
		run.ExitCode = res.ExitCode
		run.Stdout = res.Stdout
		run.Stderr = res.Stderr
	case errors.Is(runErr, execute.ErrTimeoutExceeded):
		run.Status = history.StatusTimedOut
		run.Detail = runErr.Error()
	default:
		run.Status = history.StatusLaunchFailed
		run.Detail = runErr.Error()
	}

	if _, err := store.Record(ctx, run); err != nil {
		log.Warn("failed to record run", "error", err)
	}
}

func faultExitCode(err error) int {
	switch {
	case errors.Is(err, execute.ErrTimeoutExceeded):
		return exitTimeout
	case errors.Is(err, execute.ErrCommandUnavailable):
		return exitUnavailable
	case errors.Is(err, execute.ErrConfiguration):
		return exitConfigError
	default:
		return exitLaunch
	}
}

// --- serve ---

func printServeHelp() {
	fmt.Println("Usage: runlet serve [--config PATH]")
	fmt.Println("Run the HTTP execution service in the foreground.")
	fmt.Println("Requires api.enabled: true in the configuration.")
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if !cfg.API.Enabled {
		fmt.Fprintln(os.Stderr, "serve requires api.enabled: true in the configuration")
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("runlet starting", "version", version)

	lockPath := cfg.Lock.Path
	if lockPath == "" {
		lockPath = filepath.Join(filepath.Dir(cfg.History.Path), "runlet.lock")
	}
	instanceLock, err := lock.Acquire(lockPath)
	if err != nil {
		logger.Error("failed to acquire instance lock", "path", lockPath, "error", err)
		return 1
	}
	defer instanceLock.Release()
	logger.Info("acquired instance lock", "path", lockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		logger.Error("failed to open history database", "path", cfg.History.Path, "error", err)
		return 1
	}
	defer store.Close()
	logger.Info("history database opened", "path", cfg.History.Path)

	hub := events.NewHub(cfg.API.EventBuffer)

	apiServer := api.New(api.Config{
		Listen:         cfg.API.Listen,
		APIKey:         cfg.API.APIKey,
		DefaultTimeout: cfg.Engine.DefaultTimeout,
	}, store, execute.New(), hub, log.WithComponent("api"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()
	logger.Info("API server listening", "listen", cfg.API.Listen)

	if cfg.History.Retention > 0 {
		go pruneLoop(ctx, store, cfg.History.Retention, logger)
	}

	logger.Info("runlet running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("runlet stopped")
	return 0
}

// pruneLoop enforces the history retention window while the service runs.
func pruneLoop(ctx context.Context, store *history.Store, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Prune(ctx, retention)
			if err != nil {
				logger.Warn("history prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned old runs", "count", n)
			}
		}
	}
}

// --- history ---

func runHistoryNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		w := os.Stdout
		code := 0
		if len(args) < 1 {
			w = os.Stderr
			code = 1
		}
		fmt.Fprintln(w, "Usage: runlet history <action> [flags]")
		fmt.Fprintln(w, "Actions: list, show, prune")
		return code
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		return runHistoryList(actionArgs)
	case "show":
		return runHistoryShow(actionArgs)
	case "prune":
		return runHistoryPrune(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown history action: %s\n", action)
		return 1
	}
}

func openHistoryStore(configPath string) (*history.Store, *config.Config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	store, err := history.Open(context.Background(), cfg.History.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open history database: %w", err)
	}
	return store, cfg, nil
}

func runHistoryList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 20, "Maximum runs to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	store, _, err := openHistoryStore(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	runs, err := store.List(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(runs, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return 0
	}
	fmt.Printf("%-36s  %-13s  %5s  %-20s  %s\n", "ID", "STATUS", "EXIT", "STARTED", "COMMAND")
	for _, run := range runs {
		cmd := strings.Join(run.Argv, " ")
		if len(cmd) > 40 {
			cmd = cmd[:40] + "…"
		}
		fmt.Printf("%-36s  %-13s  %5d  %-20s  %s\n",
			run.ID, run.Status, run.ExitCode,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"), cmd)
	}
	return 0
}

func runHistoryShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: runlet history show <id> [--json]")
		return 1
	}

	store, _, err := openHistoryStore(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	run, err := store.Get(context.Background(), fs.Arg(0))
	if errors.Is(err, history.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "No run with id %s\n", fs.Arg(0))
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(run, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("id:        %s\n", run.ID)
	fmt.Printf("command:   %s\n", strings.Join(run.Argv, " "))
	if run.Workdir != "" {
		fmt.Printf("workdir:   %s\n", run.Workdir)
	}
	fmt.Printf("status:    %s\n", run.Status)
	fmt.Printf("exit_code: %d\n", run.ExitCode)
	fmt.Printf("started:   %s\n", run.StartedAt.Local().Format(time.RFC3339))
	fmt.Printf("duration:  %s\n", run.Duration())
	if run.Detail != "" {
		fmt.Printf("detail:    %s\n", run.Detail)
	}
	if run.Stdout != "" {
		fmt.Printf("--- stdout ---\n%s\n", run.Stdout)
	}
	if run.Stderr != "" {
		fmt.Printf("--- stderr ---\n%s\n", run.Stderr)
	}
	return 0
}

func runHistoryPrune(args []string) int {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	olderThan := fs.Duration("older-than", 0, "Prune runs older than this (default: history.retention)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	store, cfg, err := openHistoryStore(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	window := *olderThan
	if window == 0 {
		window = cfg.History.Retention
	}
	if window <= 0 {
		fmt.Fprintln(os.Stderr, "No retention window configured; pass --older-than")
		return 1
	}

	n, err := store.Prune(context.Background(), window)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Pruned %d run(s) older than %s\n", n, window)
	return 0
}

// --- watch ---

func printWatchHelp() {
	fmt.Println("Usage: runlet watch [flags]")
	fmt.Println()
	fmt.Println("Real-time run monitoring TUI against a running runlet service.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Service API URL (default: http://127.0.0.1:8713)")
	fmt.Println("  --api-key KEY    API bearer token (or RUNLET_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  up/down, k/j     Select run")
	fmt.Println("  PgUp/PgDn        Scroll output")
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8713", "Service API URL")
	apiKey := fs.String("api-key", os.Getenv("RUNLET_API_KEY"), "API bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	m := watch.New(strings.TrimRight(*apiURL, "/"), *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// --- config ---

func runConfigNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		w := os.Stdout
		code := 0
		if len(args) < 1 {
			w = os.Stderr
			code = 1
		}
		fmt.Fprintln(w, "Usage: runlet config <action> [flags]")
		fmt.Fprintln(w, "Actions: check, hash, show")
		return code
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "hash":
		return runConfigHash(actionArgs)
	case "show":
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path := resolveConfigPath(*configPath)
	if path == "" {
		fmt.Fprintln(os.Stderr, "No configuration file found; pass --config")
		return 1
	}
	if _, err := config.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration check FAILED: %v\n", err)
		return 1
	}
	fmt.Printf("Configuration check PASSED: %s\n", path)
	return 0
}

func runConfigHash(args []string) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path := resolveConfigPath(*configPath)
	if path == "" {
		fmt.Fprintln(os.Stderr, "No configuration file found; pass --config")
		return 1
	}
	hash, err := config.WriteSidecar(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write checksum sidecar: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote %s.checksum (%s)\n", path, hash)
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Render error: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

// --- doctor ---

func printDoctorHelp() {
	fmt.Println("Usage: runlet doctor [--config PATH] [--json]")
	fmt.Println("Validate configuration and host readiness (history database,")
	fmt.Println("instance lock, engine smoke run).")
	fmt.Println()
	fmt.Println("Exit codes:")
	fmt.Println("  0  All required checks passed")
	fmt.Println("  1  One or more checks failed")
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup("ERROR", cfg.Service.LogFormat)

	result := doctor.New(cfg).Validate(context.Background())

	if *jsonOut {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		for _, issue := range result.Errors {
			fmt.Printf("ERROR [%s] %s\n", issue.Category, issue.Message)
		}
		for _, issue := range result.Warnings {
			fmt.Printf("WARN  [%s] %s\n", issue.Category, issue.Message)
		}
		if result.Valid {
			fmt.Println("All checks passed.")
		}
	}

	if !result.Valid {
		return 1
	}
	return 0
}

// --- version ---

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("runlet %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	builtAt := strings.TrimSpace(buildDate)
	if builtAt == "" || builtAt == "unknown" {
		builtAt = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, builtAt); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}

	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// --- helpers ---

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// resolveConfigPath finds the configuration file: explicit flag, then the
// RUNLET_CONFIG env var, then ./runlet.yaml. Empty means none exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("RUNLET_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat("runlet.yaml"); err == nil {
		return "runlet.yaml"
	}
	return ""
}

// loadConfig loads the resolved config file, or returns defaults when no
// file exists anywhere.
func loadConfig(explicit string) (*config.Config, error) {
	path := resolveConfigPath(explicit)
	if path == "" {
		return config.Defaults(), nil
	}
	return config.Load(path)
}
