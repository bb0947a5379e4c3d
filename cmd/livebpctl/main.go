package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"
)

const version = "0.3.0"

// defaultServer is used when neither -server nor LIVEBP_SERVER is set.
const defaultServer = "http://localhost:8000"

// errUsage marks a bad command line; the command's usage has been printed.
var errUsage = errors.New("usage")

// env is what every subcommand runs against.
type env struct {
	api *apiClient
	out io.Writer
	err io.Writer
}

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, e *env, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"stats":       {"stats", "Session statistics", runStats},
		"report":      {"report", "Performance report", runReport},
		"users":       {"users", "Connected participants", runUsers},
		"locks":       {"locks [-user ID]", "Active node locks", runLocks},
		"clear-locks": {"clear-locks [-user ID]", "Release every lock, or one user's", runClearLocks},
		"latency":     {"latency [MS]", "Show or set simulated latency", runLatency},
		"debug":       {"debug [on|off]", "Show or set debug mode", runDebug},
		"collab":      {"collab [on|off|toggle]", "Show or switch collaboration", runCollab},
		"messages":    {"messages [-limit N] [-since SECONDS]", "Journaled messages", runMessages},
		"export":      {"export [-o FILE]", "Download the journal as zstd NDJSON", runExport},
		"selftest":    {"selftest [-list] [TEST]", "Run the hub self-tests", runSelfTest},
		"throttle":    {"throttle [-enabled on|off] [-interval S] [TYPE]", "Show or change message throttling", runThrottle},
		"manifest":    {"manifest [-module M] [-variant V] [-diff]", "Module manifests and validation", runManifest},
		"watch":       {"watch [-interval D] [-count N]", "Poll statistics", runWatch},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one livebpctl invocation and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("livebpctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.String("server", serverFromEnv(), "Hub base URL (env LIVEBP_SERVER)")
	timeout := fs.Duration("timeout", 10*time.Second, "Per-request timeout")
	retries := fs.Int("retries", 2, "Retries for failed reads")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 || rest[0] == "help" || rest[0] == "-h" {
		usage(stdout)
		return 0
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", rest[0])
		usage(stderr)
		return 2
	}

	e := &env{
		api: newAPIClient(clientOptions{BaseURL: *server, Timeout: *timeout, Retries: *retries}),
		out: stdout,
		err: stderr,
	}
	if err := cmd.run(ctx, e, rest[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "usage: livebpctl %s\n", cmd.usage)
			return 2
		}
		fmt.Fprintf(stderr, "livebpctl %s: %v\n", rest[0], err)
		return 1
	}
	return 0
}

func serverFromEnv() string {
	if s := os.Getenv("LIVEBP_SERVER"); s != "" {
		return s
	}
	return defaultServer
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "livebpctl %s - LiveBP collaboration hub control\n\n", version)
	fmt.Fprintln(w, "usage: livebpctl [-server URL] [-timeout D] [-retries N] <command> [args]")
	fmt.Fprintln(w, "\ncommands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(w, "  %-50s %s\n", c.usage, c.help)
	}
	fmt.Fprintf(w, "  %-50s %s\n", "help", "Show this help")
}
