package discovery

import (
	"fmt"
	"net"
	"strings"

	"github.com/pion/mdns/v2"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Announcer answers mDNS queries for the engine's local name so device agents
// on the LAN can find the broker and API
type Announcer struct {
	conn *mdns.Conn
	name string
}

// HostName normalises a configured name to a ".local" host name
func HostName(name string) string {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	if name == "" {
		name = "autoflow"
	}
	if !strings.HasSuffix(name, ".local") {
		name += ".local"
	}
	return name
}

// Announce starts answering for localName on IPv4 and IPv6
func Announce(localName string, logger *zap.Logger) (*Announcer, error) {
	name := HostName(localName)

	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		return nil, fmt.Errorf("resolve mdns udp4 address: %w", err)
	}
	addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6)
	if err != nil {
		return nil, fmt.Errorf("resolve mdns udp6 address: %w", err)
	}

	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		return nil, fmt.Errorf("listen mdns udp4: %w", err)
	}
	l6, err := net.ListenUDP("udp6", addr6)
	if err != nil {
		_ = l4.Close()
		return nil, fmt.Errorf("listen mdns udp6: %w", err)
	}

	conn, err := mdns.Server(ipv4.NewPacketConn(l4), ipv6.NewPacketConn(l6), &mdns.Config{
		LocalNames: []string{name},
	})
	if err != nil {
		_ = l4.Close()
		_ = l6.Close()
		return nil, fmt.Errorf("start mdns server: %w", err)
	}
	logger.Info("mdns announcer started", zap.String("name", name))
	return &Announcer{conn: conn, name: name}, nil
}

// Name is the announced host name
func (a *Announcer) Name() string {
	return a.name
}

// Close stops answering queries
func (a *Announcer) Close() error {
	return a.conn.Close()
}
