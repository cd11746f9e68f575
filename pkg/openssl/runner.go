package openssl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
)

const (
	DefaultPath    = "openssl"
	DefaultTimeout = 30 * time.Second

	// TimeoutExitCode is reported when the process is killed after its deadline.
	TimeoutExitCode = 124
)

// Arg is a command argument. Binary arguments are written to a temporary file
// and replaced by its path.
type Arg struct {
	text   string
	data   []byte
	binary bool
}

func Text(value string) Arg {
	return Arg{text: value}
}

func Binary(data []byte) Arg {
	return Arg{data: data, binary: true}
}

// Texts is a shorthand for a run of text arguments.
func Texts(values ...string) []Arg {
	args := make([]Arg, len(values))
	for i, v := range values {
		args[i] = Text(v)
	}
	return args
}

type ProcessError struct {
	Args     []string
	ExitCode int
	Output   string
	TimedOut bool
}

func (e *ProcessError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out", strings.Join(e.Args, " "))
	}
	return fmt.Sprintf("%s exited with code %d: %s", strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Output))
}

type Runner struct {
	path    string
	workDir string
	timeout time.Duration
	logger  log.Logger
}

// NewRunner returns a runner for the binary at path. Temporary files are created in
// workDir, or in the system temporary directory when workDir is empty.
func NewRunner(path string, workDir string, timeout time.Duration, logger log.Logger) *Runner {
	if path == "" {
		path = DefaultPath
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{path: path, workDir: workDir, timeout: timeout, logger: logger}
}

// Run executes the binary and returns its stdout once the process has exited.
// A non-zero exit is returned as *ProcessError carrying stderr, or stdout when
// stderr is empty.
func (r *Runner) Run(ctx context.Context, args ...Arg) (string, error) {
	argv, cleanup, err := r.materialize(args)
	defer cleanup()
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.path, argv...)
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	level.Debug(r.logger).Log("msg", "Running command", "cmd", r.path, "args", strings.Join(argv, " "))
	err = cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	if ctx.Err() != nil {
		return "", fmt.Errorf("%s interrupted: %w", r.path, ctx.Err())
	}
	procErr := &ProcessError{Args: append([]string{r.path}, argv...)}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		procErr.TimedOut = true
		procErr.ExitCode = TimeoutExitCode
		procErr.Output = context.DeadlineExceeded.Error()
		return "", procErr
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return "", fmt.Errorf("could not run %s: %w", r.path, err)
	}
	procErr.ExitCode = exitErr.ExitCode()
	procErr.Output = stderr.String()
	if strings.TrimSpace(procErr.Output) == "" {
		procErr.Output = stdout.String()
	}
	return "", procErr
}

func (r *Runner) materialize(args []Arg) ([]string, func(), error) {
	var files []string
	cleanup := func() {
		for _, name := range files {
			if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
				level.Warn(r.logger).Log("err", err, "msg", "Could not remove temporary file "+name)
			}
		}
	}

	argv := make([]string, 0, len(args))
	for _, arg := range args {
		if !arg.binary {
			argv = append(argv, arg.text)
			continue
		}
		name, err := r.writeTemp(arg.data)
		if name != "" {
			files = append(files, name)
		}
		if err != nil {
			return nil, cleanup, err
		}
		argv = append(argv, name)
	}
	return argv, cleanup, nil
}

func (r *Runner) writeTemp(data []byte) (string, error) {
	dir := r.workDir
	if dir == "" {
		dir = os.TempDir()
	}
	name := filepath.Join(dir, "providore-"+uuid.NewString())
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", err
	}
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return name, err
}
