package display

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// BellNotifier rings the terminal bell. The zero-config fallback when no
// sound command is configured.
type BellNotifier struct {
	Out io.Writer
}

// Notify writes the bell character; errors are dropped.
func (b BellNotifier) Notify() {
	fmt.Fprint(b.Out, "\a")
}

// CommandNotifier shells out to a player command, e.g.
// "paplay ding.mp3". Playback runs detached and any failure is logged and
// swallowed; the alert sound is strictly fire-and-forget.
type CommandNotifier struct {
	Command string
	Args    []string
}

// NewCommandNotifier splits a configured command line on whitespace.
func NewCommandNotifier(commandLine string) CommandNotifier {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return CommandNotifier{}
	}
	return CommandNotifier{Command: fields[0], Args: fields[1:]}
}

// Notify starts the player without waiting for it to finish.
func (c CommandNotifier) Notify() {
	if c.Command == "" {
		return
	}
	cmd := exec.Command(c.Command, c.Args...)
	if err := cmd.Start(); err != nil {
		slog.Debug("alarm sound failed", slog.String("command", c.Command), slog.Any("error", err))
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("alarm sound exited", slog.String("command", c.Command), slog.Any("error", err))
		}
	}()
}
