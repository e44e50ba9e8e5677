package media

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// Transport writes packets to a remote media endpoint.
type Transport interface {
	Send(dest *net.UDPAddr, packet []byte) error
}

// UDPTransport sends every call's RTP from one shared socket.
type UDPTransport struct {
	conn *net.UDPConn

	closeOnce sync.Once
	closeErr  error
}

// NewUDPTransport binds localAddr ("" or ":0" picks an ephemeral port).
func NewUDPTransport(localAddr string) (*UDPTransport, error) {
	var laddr *net.UDPAddr
	if localAddr != "" {
		var err error
		laddr, err = net.ResolveUDPAddr("udp", localAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve RTP local address %q: %w", localAddr, err)
		}
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind RTP socket: %w", err)
	}
	return &UDPTransport{conn: conn}, nil
}

// Send writes one datagram to dest.
func (t *UDPTransport) Send(dest *net.UDPAddr, packet []byte) error {
	if dest == nil {
		return errors.New("nil RTP destination")
	}
	_, err := t.conn.WriteToUDP(packet, dest)
	return err
}

// LocalAddr returns the bound socket address.
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// Close releases the socket. Safe to call more than once.
func (t *UDPTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
