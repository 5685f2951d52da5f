package uds

import (
	"errors"
	"net"
)

const unixNetwork = "unix"

// ErrNilClient is returned when a nil client receiver is dialed.
var ErrNilClient = errors.New("uds: nil client")

// Client dials Unix domain sockets using a precomputed address.
type Client struct {
	addr net.UnixAddr
}

// NewClient creates a client for the provided socket path.
func NewClient(path string) (*Client, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	return &Client{addr: net.UnixAddr{Name: path, Net: unixNetwork}}, nil
}

// Path returns the configured socket path.
func (c *Client) Path() string {
	if c == nil {
		return ""
	}
	return c.addr.Name
}

// Dial opens a Unix domain socket connection.
func (c *Client) Dial() (*net.UnixConn, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	if c.addr.Name == "" {
		return nil, ErrEmptyPath
	}
	return net.DialUnix(unixNetwork, nil, &c.addr)
}
