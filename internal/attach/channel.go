package attach

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/loykin/processmon/internal/metrics"
)

const (
	// Host is the loopback address both sides bind to.
	Host = "127.0.0.1"
	// MaxDatagramSize is the largest payload relayed in one datagram.
	MaxDatagramSize = 65536
)

// Addr returns the loopback UDP address for port.
func Addr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(Host), Port: port}
}

// Channel is the process side of an attach session.
type Channel struct {
	name   string
	conn   *net.UDPConn
	peer   *net.UDPAddr
	logger *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Open binds processPort and targets output at connectPort.
func Open(name string, processPort, connectPort int, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := net.ListenUDP("udp", Addr(processPort))
	if err != nil {
		return nil, fmt.Errorf("attach: bind %s:%d for %s: %w", Host, processPort, name, err)
	}
	logger.Debug("attach channel bound",
		slog.String("process", name),
		slog.Int("process_port", processPort),
		slog.Int("connect_port", connectPort))
	return &Channel{
		name:   name,
		conn:   conn,
		peer:   Addr(connectPort),
		logger: logger.With(slog.String("process", name)),
	}, nil
}

// RelayTo starts copying every received datagram into w. Read errors other
// than the channel being closed are logged and the loop keeps going. The
// goroutine is joined by Close.
func (c *Channel) RelayTo(w io.Writer) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		buf := make([]byte, MaxDatagramSize)
		for {
			n, _, err := c.conn.ReadFromUDP(buf)
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				c.logger.Warn("attach read failed", slog.Any("error", err))
				continue
			}
			metrics.IncDatagram(c.name, metrics.DirectionIn)
			if _, err := w.Write(buf[:n]); err != nil {
				c.logger.Debug("attach write to stdin failed", slog.Any("error", err))
			}
		}
	}()
}

// Send forwards p to the client port, split into MaxDatagramSize chunks.
// Nobody listening is normal, so failures are only logged at debug.
func (c *Channel) Send(p []byte) {
	for len(p) > 0 {
		n := len(p)
		if n > MaxDatagramSize {
			n = MaxDatagramSize
		}
		if _, err := c.conn.WriteToUDP(p[:n], c.peer); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.logger.Debug("attach send failed", slog.Any("error", err))
			}
			return
		}
		metrics.IncDatagram(c.name, metrics.DirectionOut)
		p = p[n:]
	}
}

// Close releases the port and waits for the relay goroutine.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
		c.wg.Wait()
	})
	return c.closeErr
}
