package engine

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/dshills/codeintel/internal/logging"
)

// process is a daemon the adapter spawned and owns.
type process struct {
	cmd    *exec.Cmd
	exited chan struct{}
}

func startProcess(command string, args []string, dir string, logger *logging.Logger) (*process, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = dir
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", command, err)
	}
	go logLines(stderr, logger)

	p := &process{cmd: cmd, exited: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

func (p *process) done() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// stop waits up to grace for the daemon to exit, then kills it.
func (p *process) stop(grace time.Duration) {
	select {
	case <-p.exited:
		return
	case <-time.After(grace):
	}
	_ = p.cmd.Process.Kill()
	<-p.exited
}

func logLines(r io.Reader, logger *logging.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("stderr: %s", scanner.Text())
	}
}
