package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/tjs/executor"
)

const (
	primaryPrompt      = ">>> "
	continuationPrompt = "... "
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive REPL with persistent state",
		Long: `Start an interactive REPL (Read-Eval-Print Loop) session.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \ or open a block with :)

A bare expression prints its value. Names bound by load() stay bound.
Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
		Args: cobra.NoArgs,
		RunE: runRepl,
	}
	cmd.Flags().String("history", "", "History file path (default: ~/.tjs_history)")
	addSessionFlags(cmd)
	return cmd
}

// chunker joins REPL lines into complete chunks. A trailing backslash
// continues the line; a line ending in a colon opens a block that a blank
// line closes.
type chunker struct {
	buf     strings.Builder
	pending bool
	block   bool
}

func (c *chunker) feed(line string) (string, bool) {
	switch {
	case strings.HasSuffix(line, `\`):
		c.buf.WriteString(strings.TrimSuffix(line, `\`))
		c.buf.WriteByte('\n')
		c.pending = true
		return "", false
	case strings.HasSuffix(strings.TrimRight(line, " \t"), ":"):
		c.buf.WriteString(line)
		c.buf.WriteByte('\n')
		c.block = true
		return "", false
	case c.block && strings.TrimSpace(line) != "":
		c.buf.WriteString(line)
		c.buf.WriteByte('\n')
		return "", false
	}

	c.buf.WriteString(line)
	chunk := c.buf.String()
	c.reset()
	return chunk, true
}

func (c *chunker) reset() {
	c.buf.Reset()
	c.pending = false
	c.block = false
}

func (c *chunker) prompt() string {
	if c.pending || c.block {
		return continuationPrompt
	}
	return primaryPrompt
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".tjs_history")
	}

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	exec, log, err := s.newExecutor(cmd)
	if err != nil {
		return err
	}
	defer exec.Close()
	defer log.Sync()

	session, err := exec.NewSession(s.sessionOptions()...)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer session.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            primaryPrompt,
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		AutoComplete:      newCompleter(session),
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "tjs %s REPL (type 'exit' to quit, Ctrl+D to exit)\n", executor.Version)

	var in chunker
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				in.reset()
				rl.SetPrompt(in.prompt())
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(stdout)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		chunk, ok := in.feed(line)
		rl.SetPrompt(in.prompt())
		if !ok {
			continue
		}

		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if chunk == "exit" || chunk == "quit" {
			return nil
		}

		result := session.Run(cmd.Context(), chunk)
		if result.Output != "" {
			fmt.Fprint(stdout, result.Output)
			if !strings.HasSuffix(result.Output, "\n") {
				fmt.Fprintln(stdout)
			}
		}
		if result.Error != nil {
			fmt.Fprintf(stderr, "Error: %v\n", result.Error)
		}
	}
}

// completer offers global names and tjs members for the word under the
// cursor.
type completer struct {
	session *executor.Session
}

func newCompleter(session *executor.Session) readline.AutoCompleter {
	return &completer{session: session}
}

func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	start := pos
	for start > 0 && isIdentRune(line[start-1]) {
		start--
	}
	word := string(line[start:pos])
	if word == "" {
		return nil, 0
	}

	var out [][]rune
	for _, name := range c.candidates(word) {
		if strings.HasPrefix(name, word) && name != word {
			out = append(out, []rune(name[len(word):]))
		}
	}
	return out, len([]rune(word))
}

func (c *completer) candidates(word string) []string {
	if prefix, _, ok := strings.Cut(word, "."); ok {
		members := c.session.Members(prefix)
		names := make([]string, len(members))
		for i, m := range members {
			names[i] = prefix + "." + m
		}
		return names
	}
	return c.session.Names()
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '.' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}
