package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"vpo/internal/services"
)

var commandContext = exec.CommandContext

// stderrTailLines bounds the diagnostic tail kept from a failing tool.
const stderrTailLines = 40

// runStreaming starts the binary and forwards stdout lines to onStdout.
// Stderr is retained as a bounded tail for diagnostics. A context deadline
// is surfaced as ErrTimeout, any other non-zero exit as ErrExternalTool
// with the tail appended.
func runStreaming(ctx context.Context, binary string, args []string, onStdout func(string)) (string, error) {
	cmd := commandContext(ctx, binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "tools", binary, "start", err)
	}

	var wg sync.WaitGroup
	var tail []string
	var tailMu sync.Mutex

	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onStdout != nil {
				onStdout(scanner.Text())
			}
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			tailMu.Lock()
			tail = append(tail, scanner.Text())
			if len(tail) > stderrTailLines {
				tail = tail[len(tail)-stderrTailLines:]
			}
			tailMu.Unlock()
		}
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	tailMu.Lock()
	tailText := strings.Join(tail, "\n")
	tailMu.Unlock()

	if waitErr == nil {
		return tailText, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return tailText, services.Wrap(services.ErrTimeout, "tools", binary, "operation exceeded its time budget", waitErr)
	}
	detail := tailText
	if len(detail) > 2000 {
		detail = detail[len(detail)-2000:]
	}
	return tailText, services.Wrap(services.ErrExternalTool, "tools", binary, detail, waitErr)
}
