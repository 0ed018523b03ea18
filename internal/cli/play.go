package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"waveline.click/internal/engine"
	"waveline.click/internal/tracking"
)

const seekStepSeconds = 5.0
const volumeStep = 0.1

// runPlayE is the root command: play FILE until it ends or the user quits.
func runPlayE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	if handleVersionFlag(cmd) {
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("missing audio file argument")
	}
	path := args[0]

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	setupLogging(cfg, cmd.ErrOrStderr())
	cli.initializeTracking(cfg)

	startPos, _ := cmd.Flags().GetFloat64("start")
	loopFlag, _ := cmd.Flags().GetString("loop")
	loopStart, loopEnd, loopSet, err := parseLoopFlag(loopFlag)
	if err != nil {
		cmd.PrintErrf("Error: %v\n", err)
		return err
	}

	driver, err := cli.driverFactory.CreateDriver(cfg.Driver)
	if err != nil {
		cmd.PrintErrf("Error creating output driver: %v\n", err)
		return fmt.Errorf("error creating output driver: %w", err)
	}

	status := newStatusDisplay(cmd.OutOrStdout())
	watcher := newEndWatcher()
	sinks := engine.MultiSink{status, watcher}

	var journal *tracking.JournalSink
	if cli.trackingDB != nil {
		journal = tracking.NewJournalSink(cli.trackingDB, path)
		defer journal.Close()
		sinks = append(sinks, journal)
	}

	eng := engine.New(driver, sinks, engine.Options{
		BufferMs:        cfg.BufferMs,
		EventIntervalMs: cfg.EventIntervalMs,
		Device:          cfg.Device,
	})
	defer eng.Close()

	if err := eng.StreamFile(path, startPos, float32(cfg.Volume)); err != nil {
		return fmt.Errorf("cannot start playback: %w", err)
	}
	if loopSet {
		if err := eng.SetLoop(loopStart, loopEnd); err != nil {
			cmd.PrintErrf("Error: %v\n", err)
			return err
		}
	}

	slog.Info("playback started",
		"path", path,
		"start", startPos,
		"volume", cfg.Volume,
		"driver", cfg.Driver)

	interactive := cli.isInteractiveTerminal(int(os.Stdin.Fd()))
	if interactive {
		return runInteractive(cmd, eng, cfg, watcher, status)
	}
	return waitForEnd(cmd, watcher, status)
}

// parseLoopFlag parses START:END in seconds.
func parseLoopFlag(value string) (start, end float64, set bool, err error) {
	if value == "" {
		return 0, 0, false, nil
	}
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false, fmt.Errorf("invalid loop region '%s', expected START:END", value)
	}
	start, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid loop start '%s': %w", parts[0], err)
	}
	end, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid loop end '%s': %w", parts[1], err)
	}
	if start < 0 || end <= start {
		return 0, 0, false, fmt.Errorf("invalid loop region [%f, %f)", start, end)
	}
	return start, end, true, nil
}

// waitForEnd blocks until the track finishes or the session dies.
func waitForEnd(cmd *cobra.Command, watcher *endWatcher, status *statusDisplay) error {
	result := <-watcher.done
	status.finish()
	if result != "" {
		cmd.PrintErrf("Playback failed: %s\n", result)
		return fmt.Errorf("playback failed: %s", result)
	}
	return nil
}

// endWatcher resolves once playback reaches a terminal condition. The done
// channel carries an empty string on success and an error message otherwise.
type endWatcher struct {
	once sync.Once
	done chan string
}

func newEndWatcher() *endWatcher {
	return &endWatcher{done: make(chan string, 1)}
}

func (w *endWatcher) Emit(ev engine.Event) {
	switch e := ev.(type) {
	case engine.EndOfTrack:
		w.resolve("")
	case engine.StateChange:
		if e.Current == engine.StateError {
			w.resolve("session entered error state")
		}
	case engine.ErrorEvent:
		if e.Severity == engine.SeverityCritical {
			w.resolve(e.Message)
		}
	}
}

func (w *endWatcher) resolve(msg string) {
	w.once.Do(func() { w.done <- msg })
}

// statusDisplay renders a single live status line from engine events.
type statusDisplay struct {
	mu    sync.Mutex
	out   io.Writer
	state engine.State
	pos   float64
	dur   float64
	live  bool
}

func newStatusDisplay(out io.Writer) *statusDisplay {
	return &statusDisplay{out: out, state: engine.StateIdle}
}

func (d *statusDisplay) Emit(ev engine.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch e := ev.(type) {
	case engine.PositionUpdate:
		d.pos = e.Position
		d.dur = e.Duration
		d.render()
	case engine.StateChange:
		d.state = e.Current
		d.render()
	case engine.ErrorEvent:
		if d.live {
			fmt.Fprintln(d.out)
			d.live = false
		}
		fmt.Fprintf(d.out, "[%s] %s\n", e.Severity, e.Message)
	case engine.EndOfTrack:
		d.render()
	}
}

func (d *statusDisplay) render() {
	if d.dur > 0 {
		fmt.Fprintf(d.out, "\r%s %s / %s   ", d.state, formatTime(d.pos), formatTime(d.dur))
	} else {
		fmt.Fprintf(d.out, "\r%s %s   ", d.state, formatTime(d.pos))
	}
	d.live = true
}

// finish terminates the live status line.
func (d *statusDisplay) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.live {
		fmt.Fprintln(d.out)
		d.live = false
	}
}

// position returns the most recently reported playback position.
func (d *statusDisplay) position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

func formatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

var _ engine.Sink = (*statusDisplay)(nil)
var _ engine.Sink = (*endWatcher)(nil)
