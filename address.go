package reactor

import (
	"fmt"
	"net"
)

// Address is an IPv4 or IPv6 endpoint, independent of net.Addr so socket.go
// can build one directly from a sockaddr without round-tripping strings.
type Address struct {
	IP   net.IP
	Port int
}

func (a Address) String() string {
	if a.IP == nil {
		return fmt.Sprintf(":%d", a.Port)
	}
	return net.JoinHostPort(a.IP.String(), fmt.Sprint(a.Port))
}

func (a Address) IsZero() bool { return a.IP == nil && a.Port == 0 }

// ResolveAddress parses "host:port" (host may be empty for the wildcard
// address) into an Address, resolving hostnames via the standard resolver.
func ResolveAddress(hostport string) (Address, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", hostport)
	if err != nil {
		return Address{}, WrapError("resolve address", err)
	}
	return Address{IP: tcpAddr.IP, Port: tcpAddr.Port}, nil
}

