package compiler

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/cristim/octobuild"
)

// runDirect executes a non-compile BuildTask directly: no adapter claimed
// it, so it runs exactly as given (after $(NAME) expansion).
func runDirect(ctx context.Context, task octobuild.BuildTask) (octobuild.OutputInfo, error) {
	args := octobuild.ExpandArgs(task.Args, envResolver)
	return runCommand(ctx, task, task.Exec, args)
}

// runCommand runs program with args in task's working directory and
// environment (which replaces, not augments, the inherited environment),
// capturing stdout/stderr/exit status.
func runCommand(ctx context.Context, task octobuild.BuildTask, program string, args []string) (octobuild.OutputInfo, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = task.WorkingDir
	if task.Env != nil {
		env := make([]string, 0, len(task.Env))
		for k, v := range task.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := octobuild.OutputInfo{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		zero := 0
		out.ExitCode = &zero
		return out, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if code := exitErr.ExitCode(); code >= 0 {
			out.ExitCode = &code
		}
		// code == -1 means terminated by signal: ExitCode stays nil.
		return out, nil
	}
	return out, err
}

func envResolver(name string) (string, bool) {
	return os.LookupEnv(name)
}
