package adapter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PromptPassword asks for the server password on the terminal when the
// config names a user without one. Non-interactive stdin is an error.
func PromptPassword(cfg *Config, out io.Writer) error {
	if !cfg.NeedsPassword() {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("password for %s required: set BLOBNAV_SERVER_PASSWORD", cfg.Server.Username)
	}

	fmt.Fprintf(out, "Password for %s@%s: ", cfg.Server.Username, strings.TrimRight(cfg.Server.URL, "/"))
	passwordBytes, err := term.ReadPassword(fd)
	fmt.Fprintln(out) // Add newline after hidden input
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	cfg.Server.Password = string(passwordBytes)
	return nil
}
