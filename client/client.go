// Package client is a small Go client for the astrafs wire protocol.
// Every call dials a fresh connection: the server serves exactly one
// request per connection.
package client

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"astrafs-server/internal/proto"
)

// RemoteError is an error reported by the server. Its text is the
// server's message, byte for byte.
type RemoteError string

func (e RemoteError) Error() string { return string(e) }

type Client struct {
	addr string
}

func New(addr string) *Client {
	return &Client{addr: addr}
}

// Exists reports whether any entry exists at path under the server's
// root.
func (c *Client) Exists(path string) (bool, error) {
	conn, br, err := c.send(proto.OpExists, path)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if err := readOKStatus(br); err != nil {
		return false, err
	}
	return proto.ReadExistsPayload(br)
}

// Read fetches the whole file at path.
func (c *Client) Read(path string) ([]byte, error) {
	conn, br, err := c.send(proto.OpRead, path)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := readOKStatus(br); err != nil {
		return nil, err
	}
	return proto.ReadBytesPayload(br)
}

// List fetches the recursive file listing beneath dir. The glob is
// carried on the wire for every List request; whether the server
// applies it depends on server configuration.
func (c *Client) List(dir, glob string) ([]string, error) {
	conn, br, err := c.send(proto.OpList, dir, glob)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := readOKStatus(br); err != nil {
		return nil, err
	}
	return proto.ReadListPayload(br)
}

func (c *Client) send(op byte, lines ...string) (net.Conn, *bufio.Reader, error) {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}

	var req strings.Builder
	req.WriteByte(op)
	for _, l := range lines {
		req.WriteString(l)
		req.WriteByte('\n')
	}
	if _, err := conn.Write([]byte(req.String())); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("send request: %w", err)
	}
	return conn, bufio.NewReader(conn), nil
}

// readOKStatus consumes the status byte and, for error responses, the
// server's message.
func readOKStatus(br *bufio.Reader) error {
	status, err := proto.ReadStatus(br)
	if err != nil {
		return err
	}
	if status == proto.StatusOK {
		return nil
	}
	msg, err := proto.ReadBytesPayload(br)
	if err != nil {
		return fmt.Errorf("read error message: %w", err)
	}
	return RemoteError(msg)
}
