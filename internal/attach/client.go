package attach

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// DefaultDetachKey is Ctrl-], the telnet escape.
const DefaultDetachKey byte = 0x1d

// ErrDetached is returned by Run when the operator typed the detach key.
var ErrDetached = errors.New("attach: detached")

// Client is the operator side of an attach session.
type Client struct {
	// DetachKey ends the session when it appears in the input. Zero disables
	// it; in cooked mode EOF (Ctrl-D) or an interrupt ends the session.
	DetachKey byte
	// CRLF rewrites "\n" as "\r\n" on output, needed when the terminal is raw.
	CRLF bool

	conn   *net.UDPConn
	target *net.UDPAddr
	logger *slog.Logger
	wg     sync.WaitGroup
	once   sync.Once
}

// Dial binds connectPort and targets input at processPort.
func Dial(processPort, connectPort int, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := net.ListenUDP("udp", Addr(connectPort))
	if err != nil {
		return nil, fmt.Errorf("attach: bind %s:%d: %w", Host, connectPort, err)
	}
	return &Client{conn: conn, target: Addr(processPort), logger: logger}, nil
}

// Run relays until in reaches EOF, the detach key is read, or ctx is done.
// Incoming datagrams are written to out from a background goroutine.
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pumpOutput(out)
	}()
	defer func() { _ = c.Close() }()

	errCh := make(chan error, 1)
	go func() { errCh <- c.pumpInput(in) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Send writes one datagram to the process port.
func (c *Client) Send(p []byte) error {
	_, err := c.conn.WriteToUDP(p, c.target)
	return err
}

// Close releases the port and waits for the output goroutine.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

func (c *Client) pumpInput(in io.Reader) error {
	buf := make([]byte, MaxDatagramSize)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			detached := false
			if c.DetachKey != 0 {
				if i := bytes.IndexByte(chunk, c.DetachKey); i >= 0 {
					chunk = chunk[:i]
					detached = true
				}
			}
			if len(chunk) > 0 {
				if serr := c.Send(chunk); serr != nil {
					if errors.Is(serr, net.ErrClosed) {
						return nil
					}
					c.logger.Warn("attach send failed", slog.Any("error", serr))
				}
			}
			if detached {
				return ErrDetached
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("attach: read input: %w", err)
		}
	}
}

func (c *Client) pumpOutput(out io.Writer) {
	buf := make([]byte, MaxDatagramSize)
	for {
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			c.logger.Debug("attach read failed", slog.Any("error", err))
			continue
		}
		p := buf[:n]
		if c.CRLF {
			p = bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
		}
		if _, err := out.Write(p); err != nil {
			c.logger.Warn("attach write to terminal failed", slog.Any("error", err))
		}
	}
}
