package zxmit

import (
	"context"
	"net"

	"golang.org/x/crypto/ssh"
)

// SSHDialer reaches the receiver through an SSH server on the receiver's
// network, using direct-tcpip forwarding. The protocol bytes are carried
// unchanged inside the SSH channel.
type SSHDialer struct {
	client *ssh.Client
}

// NewSSHDialer wraps an established SSH client. The caller keeps ownership
// of the client.
func NewSSHDialer(client *ssh.Client) *SSHDialer {
	return &SSHDialer{client: client}
}

// DialSSH connects to the SSH server at addr and returns a dialer that owns
// the connection; Close releases it.
func DialSSH(addr string, config *ssh.ClientConfig) (*SSHDialer, error) {
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, WrapError(ErrConnection, "ssh dial "+addr, err)
	}
	return &SSHDialer{client: client}, nil
}

// DialContext opens a forwarded TCP connection from the SSH server to
// address. SSH channels have no deadlines of their own, so the returned
// connection emulates them.
func (d *SSHDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.client.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return withDeadlines(conn), nil
}

// Close closes the underlying SSH client.
func (d *SSHDialer) Close() error {
	return d.client.Close()
}
