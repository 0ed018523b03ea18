package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"waveline.click/internal/config"
	"waveline.click/internal/engine"
)

// TerminalDetector reports whether a file descriptor is an interactive
// terminal. An interface so tests can force either mode.
type TerminalDetector interface {
	IsTerminal(fd int) bool
}

// DefaultTerminalDetector uses golang.org/x/term.
type DefaultTerminalDetector struct{}

func (d *DefaultTerminalDetector) IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

func (c *CLI) isInteractiveTerminal(fd int) bool {
	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}
	return c.terminalDetector.IsTerminal(fd)
}

const loopRegionSeconds = 10.0

// runInteractive drives the engine from raw-mode keyboard input:
//
//	space      pause/resume
//	left/right seek -/+ 5 seconds
//	-/+        volume down/up
//	l          arm a loop from the current position
//	c          clear the loop
//	d          switch to the next output device
//	q / Ctrl-C stop and quit
func runInteractive(cmd *cobra.Command, eng *engine.Engine, cfg *config.Config, watcher *endWatcher, status *statusDisplay) error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		slog.Warn("cannot enter raw terminal mode, falling back to passive playback", "error", err)
		return waitForEnd(cmd, watcher, status)
	}
	defer term.Restore(fd, oldState)

	keys := make(chan byte, 16)
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil || n == 0 {
				return
			}
			keys <- buf[0]
		}
	}()

	paused := false
	volume := cfg.Volume
	var escState int // 0 = none, 1 = saw ESC, 2 = saw ESC [

	for {
		select {
		case result := <-watcher.done:
			status.finish()
			if result != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Playback failed: %s\r\n", result)
				return fmt.Errorf("playback failed: %s", result)
			}
			return nil

		case key, ok := <-keys:
			if !ok {
				status.finish()
				return nil
			}

			// Arrow keys arrive as ESC [ C / ESC [ D.
			switch escState {
			case 1:
				if key == '[' {
					escState = 2
				} else {
					escState = 0
				}
				continue
			case 2:
				escState = 0
				switch key {
				case 'C':
					seekRelative(eng, status, seekStepSeconds)
				case 'D':
					seekRelative(eng, status, -seekStepSeconds)
				}
				continue
			}

			switch key {
			case 0x1b:
				escState = 1
			case ' ':
				paused = !paused
				if err := eng.SetPaused(paused); err != nil {
					slog.Warn("pause command failed", "error", err)
				}
			case '+', '=':
				volume = clamp01(volume + volumeStep)
				eng.SetVolume(float32(volume))
			case '-':
				volume = clamp01(volume - volumeStep)
				eng.SetVolume(float32(volume))
			case 'l':
				pos := status.position()
				if err := eng.SetLoop(pos, pos+loopRegionSeconds); err != nil {
					slog.Warn("loop command failed", "error", err)
				}
			case 'c':
				eng.ClearLoop()
			case 'd':
				switchToNextDevice(eng)
			case 'q', 0x03:
				status.finish()
				if err := eng.Stop(); err != nil {
					slog.Warn("stop command failed", "error", err)
				}
				return nil
			}
		}
	}
}

func seekRelative(eng *engine.Engine, status *statusDisplay, delta float64) {
	target := status.position() + delta
	if target < 0 {
		target = 0
	}
	if err := eng.Seek(target); err != nil {
		slog.Warn("seek command failed", "error", err)
	}
}

// switchToNextDevice cycles through the enumerated outputs.
func switchToNextDevice(eng *engine.Engine) {
	devices, err := eng.Devices()
	if err != nil || len(devices) < 2 {
		slog.Debug("no alternate output devices", "error", err)
		return
	}

	current := 0
	for i, d := range devices {
		if d.IsDefault {
			current = i
			break
		}
	}
	next := devices[(current+1)%len(devices)]
	if err := eng.SetDevice(next.ID); err != nil {
		slog.Warn("device switch failed", "device_id", next.ID, "error", err)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
