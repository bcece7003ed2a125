package command

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/olavph/builds/logging"
)

// Command describes an external process invocation.
type Command struct {
	Name string
	Args []string
	Env  []string
	Dir  string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner executes external commands. The concrete implementation shells out
// through os/exec; tests substitute recording fakes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

type execRunner struct{}

func NewRunner() *execRunner {
	return &execRunner{}
}

func (r *execRunner) Run(ctx context.Context, cmd Command) (string, error) {
	logging.Logger.Debugw("running command", "cmd", cmd.String(), "dir", cmd.Dir)
	osCmd := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	osCmd.Dir = cmd.Dir
	osCmd.Env = append(os.Environ(), cmd.Env...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	osCmd.Stdout = &stdout
	osCmd.Stderr = &stderr
	if err := osCmd.Run(); err != nil {
		return "", fmt.Errorf("command '%s' failed: %w; stderr: %s",
			cmd.String(), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
