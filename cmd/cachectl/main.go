// Command cachectl inspects and administers a cachefs directory from
// outside the process that normally owns it: reporting aggregate size
// and hit/miss counters, purging individual entries, forcing an eviction
// pass, and (via the shell subcommand) driving the cache interactively.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/cachefs/cachefs/pkg/cachefs"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	globalFlags := flag.NewFlagSet("cachectl", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(new(discard))

	flagDir := globalFlags.String("dir", "", "cache directory")
	flagPrefix := globalFlags.String("prefix", "cachefs_", "filename prefix for this cache's entries")
	flagMaxMB := globalFlags.Uint64("max-mb", 0, "maximum aggregate cache size in megabytes (0 = unlimited)")
	flagConfig := globalFlags.String("config", "", "path to a HuJSON config file (default: <dir>/"+cachefs.ConfigFileName+")")

	if err := globalFlags.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	rest := globalFlags.Args()
	if len(rest) == 0 {
		printUsage(os.Stderr)

		return 1
	}

	configPath := *flagConfig
	if configPath == "" && *flagDir != "" {
		configPath = filepath.Join(*flagDir, cachefs.ConfigFileName)
	}

	opts, err := cachefs.LoadOptions(configPath, cachefs.Options{
		Dir:      *flagDir,
		Prefix:   *flagPrefix,
		MaxBytes: *flagMaxMB << 20,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	c, err := cachefs.New(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	cmdName, cmdArgs := rest[0], rest[1:]

	switch cmdName {
	case "stat":
		return cmdStat(c)
	case "purge":
		return cmdPurge(c, cmdArgs)
	case "gc":
		return cmdGC(c, cmdArgs)
	case "shell":
		return cmdShell(c)
	case "help", "-h", "--help":
		printUsage(os.Stdout)

		return 0
	default:
		fmt.Fprintln(os.Stderr, "error: unknown command:", cmdName)
		printUsage(os.Stderr)

		return 1
	}
}

func cmdStat(c *cachefs.Cache) int {
	stats := c.Stats()

	fmt.Printf("enabled:   %v\n", c.Enabled())
	fmt.Printf("size:      %d bytes\n", stats.Size)
	fmt.Printf("hits:      %d\n", stats.Hits)
	fmt.Printf("misses:    %d\n", stats.Misses)
	fmt.Printf("evictions: %d\n", stats.Evictions)
	fmt.Printf("failures:  %d\n", stats.Failures)

	return 0
}

func cmdPurge(c *cachefs.Cache, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: cachectl purge <source-id>")

		return 1
	}

	path, err := c.FileName(args[0], true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	if err := c.PurgeFile(path); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	fmt.Println("purged")

	return 0
}

func cmdGC(c *cachefs.Cache, args []string) int {
	if err := c.UpdateAndPurge(""); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	size, err := c.GetCacheSize()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	fmt.Printf("gc complete: size=%d bytes\n", size)

	return 0
}

func cmdShell(c *cachefs.Cache) int {
	sh := newShell(c)

	if err := sh.run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)

		return 1
	}

	return 0
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, "cachectl - inspect and administer a cachefs directory")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: cachectl [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  --dir <dir>        cache directory")
	fmt.Fprintln(w, "  --prefix <prefix>  filename prefix (default: cachefs_)")
	fmt.Fprintln(w, "  --max-mb <n>       maximum aggregate size in megabytes")
	fmt.Fprintln(w, "  --config <file>    HuJSON config file")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  stat               print cache size and hit/miss counters")
	fmt.Fprintln(w, "  purge <id>         remove one entry by its source id")
	fmt.Fprintln(w, "  gc                 force a full eviction pass")
	fmt.Fprintln(w, "  shell              start an interactive session")
}

// discard implements io.Writer by dropping everything written to it, used
// to silence pflag's own error/usage printing so cachectl controls all
// output formatting itself.
type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
