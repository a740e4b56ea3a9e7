package adapter

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

// Opener hands a URL to an external program, normally the web browser, so
// the current location can be viewed in the server's own UI.
type Opener struct {
	command string   // configured command, empty for system default
	args    []string // additional arguments before the URL
	logger  *slog.Logger

	// start runs the command without waiting; replaced in tests
	start func(name string, args ...string) error
}

// NewOpener creates an Opener. An empty command uses the system default.
func NewOpener(command string, args []string, logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{
		command: command,
		args:    args,
		logger:  logger,
		start: func(name string, args ...string) error {
			return exec.Command(name, args...).Start()
		},
	}
}

// Open opens url in the configured program or the system default handler
func (o *Opener) Open(url string) error {
	name, args := o.commandFor(url)
	o.logger.Info("opening url", "command", name, "url", url)
	if err := o.start(name, args...); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	return nil
}

func (o *Opener) commandFor(url string) (string, []string) {
	if o.command != "" {
		return o.command, append(append([]string{}, o.args...), url)
	}
	switch runtime.GOOS {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "cmd", []string{"/c", "start", "", url}
	default:
		// Linux and other Unix-like systems
		return "xdg-open", []string{url}
	}
}
