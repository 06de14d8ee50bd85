package rpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/binary"
	"encoding/gob"
	"io"
	"net"
	"sync"

	"github.com/cuemby/shardmail/pkg/errs"
	"github.com/cuemby/shardmail/pkg/log"
)

// envelope wraps a Request/Response with the correlation id the client
// needs to match an async reply to the call that issued it, replacing
// Rust's per-call oneshot channel.
type envelope struct {
	ID       uint64
	IsReply  bool
	Request  Request
	Response Response
}

// writeFrame gob-encodes env into a standalone message and writes it to w
// behind a 4-byte big-endian length prefix, so a reader never has to
// guess where one envelope ends and the next begins over a raw stream.
func writeFrame(w io.Writer, env envelope) error {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(env); err != nil {
		return err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(body.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

// readFrame reads one length-prefixed envelope from r.
func readFrame(r io.Reader) (envelope, error) {
	var env envelope
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return env, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return env, err
	}
	err := gob.NewDecoder(bytes.NewReader(body)).Decode(&env)
	return env, err
}

// Client is one persistent, framed gob connection to a peer. One
// goroutine-per-driver calls Call; an internal reader goroutine
// demultiplexes replies onto each caller's private channel. Ordering
// within one driver is preserved as long as that driver calls Call
// serially, matching the one-outstanding-request-per-driver guarantee of
// spec.md §5.
type Client struct {
	addr      string
	tlsConfig *tls.Config

	mu      sync.Mutex
	conn    net.Conn
	nextID  uint64
	pending map[uint64]chan Response
}

// NewClient builds a Client for addr. The connection is established
// lazily on the first Call.
func NewClient(addr string, tlsConfig *tls.Config) *Client {
	return &Client{addr: addr, tlsConfig: tlsConfig, pending: make(map[uint64]chan Response)}
}

func (c *Client) ensureConn() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := tls.Dial("tcp", c.addr, c.tlsConfig)
	if err != nil {
		return nil, errs.NewInternal("rpc.Client.ensureConn", err)
	}
	c.conn = conn
	go c.readLoop(conn)
	return conn, nil
}

func (c *Client) readLoop(conn net.Conn) {
	for {
		env, err := readFrame(conn)
		if err != nil {
			c.failAll(conn, err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- env.Response
		}
	}
}

func (c *Client) failAll(conn net.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		conn.Close()
		c.conn = nil
	}
	log.Errorf(c.addr+": connection lost", err)
	for id, ch := range c.pending {
		ch <- None()
		delete(c.pending, id)
	}
}

// Call sends req and blocks for the matching Response, returning
// rpc.None() if ctx is cancelled or the connection drops before a reply
// arrives -- a dropped request is never an error, per spec.md §7.
func (c *Client) Call(ctx context.Context, req Request) Response {
	conn, err := c.ensureConn()
	if err != nil {
		return None()
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	ch := make(chan Response, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if err := writeFrame(conn, envelope{ID: id, Request: req}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return None()
	}

	select {
	case resp := <-ch:
		return resp
	case <-ctx.Done():
		return None()
	}
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// ServeConn runs the server side of one accepted peer connection,
// invoking handle for each decoded Request and writing back its Response
// under the same correlation id. Blocks until the connection closes.
func ServeConn(conn net.Conn, handle func(Request) Response) error {
	var writeMu sync.Mutex
	for {
		env, err := readFrame(conn)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errs.NewInternal("rpc.ServeConn", err)
		}
		go func(env envelope) {
			resp := handle(env.Request)
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = writeFrame(conn, envelope{ID: env.ID, IsReply: true, Response: resp})
		}(env)
	}
}
