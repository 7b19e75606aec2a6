// Package build implements the per-image build pipeline: the output
// Watcher (spec.md §4.2), the Runner (§4.3), and the Coordinator (§4.4).
package build

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/cobliteam/shelver/internal/shelvererr"
	"github.com/fatih/color"
	"golang.org/x/term"
)

const packerCommaEscape = "%!(PACKER_COMMA)"

// watcherColors is the fixed six-color palette human output prefixes are
// hashed into, grounded on Watcher.COLORS in original_source's
// shelver/build/watcher.py. fatih/color (carried in from
// jesseduffield-lazydocker's go.mod) replaces the source's hand-rolled
// ANSI escape table.
var watcherColors = []*color.Color{
	color.New(color.FgCyan),
	color.New(color.FgGreen),
	color.New(color.FgYellow),
	color.New(color.FgMagenta),
	color.New(color.FgBlue),
	color.New(color.FgRed),
}

func colorFor(name string) *color.Color {
	var h uint32
	for _, b := range []byte(name) {
		h = h*31 + uint32(b)
	}
	return watcherColors[h%uint32(len(watcherColors))]
}

// Watcher parses the builder tool's machine-readable stdout protocol,
// forwards human-readable output, and tees both streams to a per-build
// log file.
type Watcher struct {
	ImageName string
	Human     io.Writer
	LogFile   io.Writer

	mu        sync.Mutex
	errors    []string
	artifacts []map[string]string

	colorize bool
}

// NewWatcher constructs a Watcher for one build. colorize gates ANSI
// prefix coloring on human being a terminal, per spec.md §4.2 ("When the
// message stream is a terminal, the prefix is colorized").
func NewWatcher(imageName string, human, logFile io.Writer) *Watcher {
	colorize := false
	if f, ok := human.(*os.File); ok {
		colorize = term.IsTerminal(int(f.Fd()))
	}
	return &Watcher{ImageName: imageName, Human: human, LogFile: logFile, colorize: colorize}
}

func (w *Watcher) writeHuman(line string) {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if w.Human != nil {
		io.WriteString(w.Human, line)
	}
	if w.LogFile != nil {
		io.WriteString(w.LogFile, line)
	}
}

func (w *Watcher) prefixed(target, message string) string {
	prefix := w.ImageName
	if target != "" {
		prefix = target + "/" + w.ImageName
	}
	if w.colorize {
		prefix = colorFor(w.ImageName).Sprint(prefix)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

func unescapeComma(s string) string {
	return strings.ReplaceAll(s, packerCommaEscape, ",")
}

// parseLine handles one line of the builder tool's stdout, per spec.md
// §4.2's TIMESTAMP,TARGET,TYPE,DATA protocol.
func (w *Watcher) parseLine(line string) {
	parts := strings.SplitN(line, ",", 4)
	if len(parts) != 4 {
		w.writeHuman(line)
		return
	}
	target, typ, data := parts[1], parts[2], parts[3]

	switch typ {
	case "ui":
		sub := strings.SplitN(data, ",", 2)
		message := ""
		if len(sub) == 2 {
			message = unescapeComma(sub[1])
		} else if len(sub) == 1 {
			message = unescapeComma(sub[0])
		}
		w.writeHuman(w.prefixed(target, message))

	case "error":
		w.mu.Lock()
		w.errors = append(w.errors, unescapeComma(data))
		w.mu.Unlock()

	case "artifact":
		w.handleArtifactLine(data)

	default:
		w.writeHuman(line)
	}
}

func (w *Watcher) handleArtifactLine(data string) {
	fields := strings.SplitN(data, ",", 3)
	if len(fields) < 2 {
		return
	}
	idx, err := strconv.Atoi(fields[0])
	if err != nil || idx < 0 {
		return
	}
	key := fields[1]
	valuePart := ""
	if len(fields) == 3 {
		valuePart = fields[2]
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.artifacts) <= idx {
		w.artifacts = append(w.artifacts, map[string]string{})
	}
	entry := w.artifacts[idx]

	switch key {
	case "end":
		return
	case "id":
		region, id, ok := strings.Cut(unescapeComma(valuePart), ":")
		if ok {
			entry["region"] = region
			entry["id"] = id
		} else {
			entry["id"] = unescapeComma(valuePart)
		}
	default:
		values := strings.Split(valuePart, ",")
		for i := range values {
			values[i] = unescapeComma(values[i])
		}
		if len(values) == 1 {
			entry[key] = values[0]
		} else {
			entry[key] = strings.Join(values, ",")
		}
	}
}

// handleStdout reads and parses every line of the builder tool's
// machine-readable stdout until EOF or a read error; cancellation does
// not stop it, so output keeps being drained until the process exits.
func (w *Watcher) handleStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		w.parseLine(scanner.Text())
	}
}

// handleStderr forwards stderr unconditionally to the human stream.
func (w *Watcher) handleStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		w.writeHuman(scanner.Text())
	}
}

// Run starts cmd, multiplexes its pipes through the Watcher, and
// implements the two-stage cooperative cancellation of spec.md §4.2: a
// first ctx cancellation sends SIGINT and keeps draining pipes (I/O is
// shielded from cancellation so no output is lost), appends "Canceled by
// signal" to the error list, and awaits exit; a second cancellation,
// signalled by the caller closing force (the Coordinator does so once its
// CancelTimeout expires), sends SIGKILL and awaits exit before
// propagating cancellation to the caller.
func (w *Watcher) Run(ctx context.Context, force <-chan struct{}, cmd *exec.Cmd) ([]map[string]string, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); w.handleStdout(stdout) }()
	go func() { defer wg.Done(); w.handleStderr(stderr) }()

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	// softDone fires on the first cancellation; it is nil'd out after
	// being handled once so the same already-closed ctx.Done() channel
	// cannot immediately re-trigger the select below. The second,
	// forceful cancellation is a logically distinct signal (force),
	// never the same channel re-read, matching spec.md §4.2's two
	// separate cancellation stages.
	softDone := ctx.Done()
	for {
		select {
		case err := <-waitErr:
			wg.Wait()
			return w.finish(err)

		case <-softDone:
			softDone = nil
			w.mu.Lock()
			w.errors = append(w.errors, "Canceled by signal")
			w.mu.Unlock()
			_ = cmd.Process.Signal(syscall.SIGINT)

		case <-force:
			_ = cmd.Process.Signal(syscall.SIGKILL)
			<-waitErr
			wg.Wait()
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, context.Canceled
		}
	}
}

func (w *Watcher) finish(waitErr error) ([]map[string]string, error) {
	if waitErr == nil {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.artifacts, nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if ok := asExitError(waitErr, &exitErr); ok {
		exitCode = exitErr.ExitCode()
	}

	w.mu.Lock()
	errs := append([]string(nil), w.errors...)
	w.mu.Unlock()

	return nil, &shelvererr.BuilderToolError{ExitCode: exitCode, Errors: errs}
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
