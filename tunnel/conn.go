package tunnel

import (
	"io"
	"net"
	"sync"

	"tlscat/util"
)

// channelConn gives a forwarded SSH channel the deadline support the
// TLS layer relies on.  The channel does not implement deadlines, so
// it is pumped through an in-memory pipe that does.
type channelConn struct {
	net.Conn // local end of the pipe
	ch       net.Conn
	once     sync.Once
}

func withDeadlines(ch net.Conn) net.Conn {
	local, remote := net.Pipe()
	c := &channelConn{Conn: local, ch: ch}

	go pump(remote, ch, remote.Close)
	go pump(ch, remote, c.closeChannel)
	return c
}

// pump copies src into dst and runs done when src is exhausted or dst
// refuses data.
func pump(dst io.Writer, src io.Reader, done func() error) {
	buf := util.GetBuf()
	defer util.PutBuf(buf)
	_, _ = io.CopyBuffer(dst, src, *buf)
	_ = done()
}

func (c *channelConn) closeChannel() error {
	var err error
	c.once.Do(func() { err = c.ch.Close() })
	return err
}

func (c *channelConn) LocalAddr() net.Addr  { return c.ch.LocalAddr() }
func (c *channelConn) RemoteAddr() net.Addr { return c.ch.RemoteAddr() }

// Close closes the pipe and the channel behind it.
func (c *channelConn) Close() error {
	err := c.Conn.Close()
	if cerr := c.closeChannel(); err == nil {
		err = cerr
	}
	return err
}

