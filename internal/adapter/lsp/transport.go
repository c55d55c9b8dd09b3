package lsp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"time"

	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/provider"
)

// Transport is an open byte stream to a language server.
type Transport struct {
	// Stream carries framed JSON-RPC messages.
	Stream io.ReadWriteCloser
	// Exited is closed when the server process exits. Nil for servers the
	// adapter does not own.
	Exited <-chan struct{}
	// Kill terminates the server process. Nil for servers the adapter does
	// not own.
	Kill func() error
}

// Dialer opens a transport for a provider configuration.
type Dialer func(ctx context.Context, cfg provider.Config, logger *logging.Logger) (*Transport, error)

// DialConfig opens the transport a configuration describes: a TCP
// connection to an external server when "external" is set, otherwise a
// subprocess spoken to over stdio, or over TCP when "stdio" is false.
func DialConfig(ctx context.Context, cfg provider.Config, logger *logging.Logger) (*Transport, error) {
	host := cfg.String(provider.KeyHost, "127.0.0.1")
	port := cfg.Int(provider.KeyPort, 0)
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	if cfg.Bool(provider.KeyExternal, false) {
		if port <= 0 {
			return nil, fmt.Errorf("%w: external server needs a port", provider.ErrInvalidConfig)
		}
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", addr, err)
		}
		return &Transport{Stream: conn}, nil
	}

	command := cfg.String(provider.KeyCommand, "")
	if command == "" {
		return nil, fmt.Errorf("%w: no command", provider.ErrInvalidConfig)
	}
	cmd := exec.Command(command, cfg.Strings(provider.KeyArgs)...)
	if dir := cfg.String(KeyRootPath, ""); dir != "" {
		cmd.Dir = dir
	}

	if !cfg.Bool(provider.KeyStdio, true) {
		if port <= 0 {
			return nil, fmt.Errorf("%w: tcp server needs a port", provider.ErrInvalidConfig)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("starting %s: %w", command, err)
		}
		go logLines(stderr, logger)
		exited := waitProcess(cmd)
		conn, err := dialListener(ctx, addr, exited)
		if err != nil {
			_ = cmd.Process.Kill()
			return nil, err
		}
		return &Transport{Stream: conn, Exited: exited, Kill: cmd.Process.Kill}, nil
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("starting %s: %w", command, err)
	}
	go logLines(stderr, logger)

	return &Transport{
		Stream: &stdioReadWriteCloser{stdin: stdin, stdout: stdout},
		Exited: waitProcess(cmd),
		Kill:   cmd.Process.Kill,
	}, nil
}

// dialListener connects to a server the adapter just spawned. The server
// needs a moment to bind its port.
func dialListener(ctx context.Context, addr string, exited <-chan struct{}) (net.Conn, error) {
	var d net.Dialer
	var lastErr error
	for i := 0; i < 50; i++ {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-exited:
			return nil, fmt.Errorf("server exited before listening on %s", addr)
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("connecting to %s: %w", addr, lastErr)
}

func waitProcess(cmd *exec.Cmd) <-chan struct{} {
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	return exited
}

// stdioReadWriteCloser joins a process's stdin and stdout.
type stdioReadWriteCloser struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (rwc *stdioReadWriteCloser) Read(p []byte) (int, error) {
	return rwc.stdout.Read(p)
}

func (rwc *stdioReadWriteCloser) Write(p []byte) (int, error) {
	return rwc.stdin.Write(p)
}

func (rwc *stdioReadWriteCloser) Close() error {
	err1 := rwc.stdin.Close()
	err2 := rwc.stdout.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// logLines forwards a server's stderr to the debug log line by line.
func logLines(r io.Reader, logger *logging.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		logger.Debug("stderr: %s", scanner.Text())
	}
}
