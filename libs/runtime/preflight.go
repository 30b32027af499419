package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ReadyCheck is a named dependency check run before a batch starts.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// PreflightError lists every dependency that failed its check.
type PreflightError struct {
	Failures []string
}

func (e *PreflightError) Error() string {
	return "preflight failed: " + strings.Join(e.Failures, "; ")
}

// Preflight runs every check with its own timeout and reports all failures
// at once. Nil checks are skipped.
func Preflight(ctx context.Context, timeout time.Duration, checks ...ReadyCheck) error {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	var failures []string
	for _, check := range checks {
		if check.Check == nil {
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := check.Check(checkCtx)
		cancel()
		if err != nil {
			name := check.Name
			if name == "" {
				name = "dependency"
			}
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(failures) > 0 {
		return &PreflightError{Failures: failures}
	}
	return nil
}
