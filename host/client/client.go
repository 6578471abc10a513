// Package client is the sender side of the line protocol: it streams
// lines to a controller and waits for each confirmation.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gorbl/protocol"
)

var (
	ErrTimeout = errors.New("client: response timeout")
	ErrClosed  = errors.New("client: link closed")
)

// CommandError is returned when the controller rejects a line
type CommandError struct {
	Line string
	Code protocol.StatusCode
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%q rejected: error:%d (%s)", e.Line, e.Code, e.Code)
}

// Options tune a client
type Options struct {
	// Timeout bounds the wait for a confirmation; zero selects 2s
	Timeout time.Duration
	// OnMessage receives every line that is neither a confirmation nor a
	// status frame: feedback messages, alarms, dumps and the welcome line
	OnMessage func(line string)
}

// Client talks to a controller over a byte link. One line is in flight
// at a time.
type Client struct {
	port io.ReadWriteCloser
	log  logrus.FieldLogger
	opts Options

	writeMu sync.Mutex
	sendMu  sync.Mutex

	results chan protocol.StatusCode
	status  chan Status
	done    chan struct{}
}

// New starts reading from port
func New(port io.ReadWriteCloser, log logrus.FieldLogger, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	c := &Client{
		port:    port,
		log:     log,
		opts:    opts,
		results: make(chan protocol.StatusCode, 16),
		status:  make(chan Status, 1),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.done)

	scanner := bufio.NewScanner(c.port)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		c.dispatch(line)
	}
	if err := scanner.Err(); err != nil {
		c.log.WithError(err).Warn("link read failed")
	}
}

func (c *Client) dispatch(line string) {
	switch {
	case line == "ok":
		c.confirm(protocol.StatusOK)
	case strings.HasPrefix(line, "error:"):
		n, err := strconv.Atoi(line[len("error:"):])
		if err != nil {
			c.log.WithField("line", line).Warn("malformed error response")
			n = int(protocol.StatusInvalidStatement)
		}
		c.confirm(protocol.StatusCode(n))
	case line[0] == '<':
		st, err := ParseStatus(line)
		if err != nil {
			c.log.WithError(err).WithField("line", line).Warn("malformed status frame")
			return
		}
		// keep only the newest frame
		select {
		case <-c.status:
		default:
		}
		c.status <- st
	default:
		if strings.HasPrefix(line, "ALARM:") {
			c.log.WithField("alarm", line[len("ALARM:"):]).Warn("controller alarm")
		} else {
			c.log.WithField("line", line).Debug("controller message")
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(line)
		}
	}
}

func (c *Client) confirm(code protocol.StatusCode) {
	select {
	case c.results <- code:
	default:
		c.log.WithField("status", code.String()).Warn("dropping unexpected confirmation")
	}
}

func (c *Client) write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	_, err := c.port.Write(p)
	return err
}

// Send writes one line and returns the controller's status code
func (c *Client) Send(ctx context.Context, line string) (protocol.StatusCode, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	// confirmations nobody waited for belong to earlier traffic
	for len(c.results) > 0 {
		<-c.results
	}
	if err := c.write([]byte(line + "\n")); err != nil {
		return 0, err
	}

	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()
	select {
	case code := <-c.results:
		return code, nil
	case <-timer.C:
		return 0, fmt.Errorf("%q: %w", line, ErrTimeout)
	case <-c.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Exec sends a line and turns a rejection into a *CommandError
func (c *Client) Exec(ctx context.Context, line string) error {
	code, err := c.Send(ctx, line)
	if err != nil {
		return err
	}
	if code != protocol.StatusOK {
		return &CommandError{Line: line, Code: code}
	}
	return nil
}

// Stream sends every non-empty line of r, stopping at the first
// rejection. It returns the number of lines accepted.
func (c *Client) Stream(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	sent := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := c.Exec(ctx, line); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, scanner.Err()
}

// Realtime sends a single realtime command byte
func (c *Client) Realtime(b byte) error {
	if !protocol.IsRealtime(b) {
		return fmt.Errorf("client: 0x%02X is not a realtime command", b)
	}
	return c.write([]byte{b})
}

// Status polls the controller and returns the next status frame
func (c *Client) Status(ctx context.Context) (Status, error) {
	select {
	case <-c.status:
	default:
	}
	if err := c.Realtime(protocol.CmdStatusReport); err != nil {
		return Status{}, err
	}

	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()
	select {
	case st := <-c.status:
		return st, nil
	case <-timer.C:
		return Status{}, ErrTimeout
	case <-c.done:
		return Status{}, ErrClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Close closes the link and waits for the reader to stop
func (c *Client) Close() error {
	err := c.port.Close()
	<-c.done
	return err
}
