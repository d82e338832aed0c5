package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/cachefs/cachefs/pkg/cachefs"
)

// shell is the interactive cachectl session, modeled on the teacher
// corpus's own liner-based REPLs: a readline-style prompt with history
// and tab completion over a small fixed command set.
type shell struct {
	cache *cachefs.Cache
	liner *liner.State
}

func newShell(c *cachefs.Cache) *shell {
	return &shell{cache: c}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".cachectl_history")
}

var shellCommands = []string{
	"get", "purge", "stat", "evict", "help", "exit", "quit", "q",
}

func (s *shell) run() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(historyPath()); err == nil {
		_, _ = s.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("cachectl shell (enabled=%v)\n", s.cache.Enabled())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := s.liner.Prompt("cachectl> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			s.saveHistory()

			return nil
		case "help", "?":
			s.printHelp()
		case "get":
			s.cmdGet(args)
		case "purge":
			s.cmdPurge(args)
		case "stat":
			s.cmdStat()
		case "evict":
			s.cmdEvict()
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	s.saveHistory()

	return nil
}

func (s *shell) saveHistory() {
	path := historyPath()
	if path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		_, _ = s.liner.WriteHistory(f)
		f.Close()
	}
}

func (s *shell) completer(line string) []string {
	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range shellCommands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (s *shell) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  get <id>      Show whether <id> is cached, and its size if so")
	fmt.Println("  purge <id>    Remove the cache entry for <id>")
	fmt.Println("  stat          Show aggregate size and hit/miss counters")
	fmt.Println("  evict         Force a full eviction pass")
	fmt.Println("  help          Show this help")
	fmt.Println("  exit / quit / q  Exit")
}

func (s *shell) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: get <id>")

		return
	}

	path, err := s.cache.FileName(args[0], true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	r, err := s.cache.ReadLock(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if r.Outcome == cachefs.ReadMissing {
		fmt.Println("(not cached)")

		return
	}
	defer s.cache.UnlockAndClose(path)

	fi, err := r.Handle.File().Stat()
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("cached: %s (%d bytes)\n", path, fi.Size())
}

func (s *shell) cmdPurge(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: purge <id>")

		return
	}

	path, err := s.cache.FileName(args[0], true)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if err := s.cache.PurgeFile(path); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK: purged", args[0])
}

func (s *shell) cmdStat() {
	stats := s.cache.Stats()

	fmt.Printf("size:      %d bytes\n", stats.Size)
	fmt.Printf("hits:      %d\n", stats.Hits)
	fmt.Printf("misses:    %d\n", stats.Misses)
	fmt.Printf("evictions: %d\n", stats.Evictions)
	fmt.Printf("failures:  %d\n", stats.Failures)
}

func (s *shell) cmdEvict() {
	if err := s.cache.UpdateAndPurge(""); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK: eviction pass complete")
}
