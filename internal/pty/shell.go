package pty

import (
	"fmt"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"
)

const fallbackShell = "/bin/sh"

// ShellArgv resolves the shell to record. An empty configured value means
// $SHELL. The value may carry arguments ("zsh -l") and is split with shell
// quoting rules.
func ShellArgv(configured string) ([]string, error) {
	shell := strings.TrimSpace(configured)
	if shell == "" {
		shell = strings.TrimSpace(os.Getenv("SHELL"))
	}
	if shell == "" {
		return []string{fallbackShell}, nil
	}
	argv, err := shellquote.Split(shell)
	if err != nil {
		return nil, fmt.Errorf("pty: parse shell %q: %w", shell, err)
	}
	if len(argv) == 0 {
		return []string{fallbackShell}, nil
	}
	return argv, nil
}
