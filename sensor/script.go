package sensor

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// defaultScriptTimeout bounds script execution when the config gives none.
const defaultScriptTimeout = 5 * time.Second

// newScriptReader builds the custom_script reader. The script named by the
// "script" parameter is run through the shell; its trimmed standard output
// is the sensor value when it exits zero within the "timeout" (seconds)
// parameter. Nonzero exit, timeout, or a spawn failure yields absent with
// a warning - execution is never retried.
func newScriptReader(logger *slog.Logger) Reader {
	return func(ctx context.Context, params Params) (any, bool) {
		script := params.String("script", params.String("script_path", ""))
		if script == "" {
			logger.Warn("custom_script sensor has no script configured")
			return nil, false
		}
		timeout := params.Duration("timeout", defaultScriptTimeout)

		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, "sh", "-c", script)
		var stdout, stderr strings.Builder
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		if err == nil {
			return strings.TrimSpace(stdout.String()), true
		}

		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			logger.Warn("custom script timed out",
				"script", script,
				"timeout", timeout)
			return nil, false
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Warn("custom script exited nonzero",
				"script", script,
				"exit_code", exitErr.ExitCode(),
				"stderr", strings.TrimSpace(stderr.String()))
			return nil, false
		}

		logger.Warn("custom script failed to run",
			"script", script,
			"error", err)
		return nil, false
	}
}
