package zxmit

import (
	"context"
	"net"
	"strconv"
	"time"
)

// Dialer opens the connection to the receiver. *net.Dialer satisfies it, as
// does SSHDialer for receivers reachable only through a jump host.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultDialTimeout bounds connection attempts of the default dialer.
const DefaultDialTimeout = 10 * time.Second

func defaultDialer() Dialer {
	return &net.Dialer{Timeout: DefaultDialTimeout}
}

// JoinAddress appends port to address unless it already names one.
func JoinAddress(address string, port int) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(port))
}

