package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

const defaultEditor = "vim"

// editText opens initial in $EDITOR and returns the saved contents with
// surrounding whitespace trimmed.
func editText(initial string) (string, error) {
	f, err := os.CreateTemp("", "jake-msg-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(initial); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = defaultEditor
	}
	// EDITOR may carry flags, e.g. "code --wait"
	argv, err := shellwords.Parse(editor)
	if err != nil || len(argv) == 0 {
		return "", fmt.Errorf("invalid EDITOR %q", editor)
	}

	cmd := exec.Command(argv[0], append(argv[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("editor %s failed: %w", argv[0], err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read edited message: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
