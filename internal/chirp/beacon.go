package chirp

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/net/ipv4"

	"github.com/google/uuid"
)

// beacon owns the UDP broadcast socket CHIRP sends and listens on: a raw
// net.PacketConn wrapped in an ipv4.PacketConn so the receiving interface
// index is available for diagnostics, with read-buffer sizing and wrapped
// errors on every socket operation.
type beacon struct {
	hostUUID uuid.UUID
	group    string
	port     int
	conn     *net.UDPConn
	ipv4Conn *ipv4.PacketConn
	bcastTo  *net.UDPAddr
}

// newBeacon binds a UDP socket on the given interface/port and resolves the
// subnet broadcast address to send to.
func newBeacon(hostUUID uuid.UUID, group, iface string, port int) (*beacon, error) {
	if port == 0 {
		port = DefaultPort
	}
	laddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(iface, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve CHIRP listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("bind CHIRP socket on %s: %w", laddr, err)
	}
	if err := conn.SetReadBuffer(65536); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("configure CHIRP socket read buffer: %w", err)
	}

	bcastAddr := broadcastAddrFor(iface, port)

	ipv4Conn := ipv4.NewPacketConn(conn)
	_ = ipv4Conn.SetControlMessage(ipv4.FlagInterface, true) // best-effort; 0 on failure

	return &beacon{
		hostUUID: hostUUID,
		group:    group,
		port:     port,
		conn:     conn,
		ipv4Conn: ipv4Conn,
		bcastTo:  bcastAddr,
	}, nil
}

// broadcastAddrFor derives a subnet broadcast address from the interface
// that owns iface's IPv4 address, falling back to the limited broadcast
// address 255.255.255.255 when no matching interface is found.
func broadcastAddrFor(iface string, port int) *net.UDPAddr {
	if ip := net.ParseIP(iface); ip != nil {
		if ifaces, err := net.Interfaces(); err == nil {
			for _, ifi := range ifaces {
				addrs, err := ifi.Addrs()
				if err != nil {
					continue
				}
				for _, a := range addrs {
					ipnet, ok := a.(*net.IPNet)
					if !ok || !ipnet.IP.Equal(ip) {
						continue
					}
					bcast := make(net.IP, len(ipnet.IP.To4()))
					ip4 := ipnet.IP.To4()
					mask := ipnet.Mask
					for i := range bcast {
						bcast[i] = ip4[i] | ^mask[i]
					}
					return &net.UDPAddr{IP: bcast, Port: port}
				}
			}
		}
	}
	return &net.UDPAddr{IP: net.IPv4bcast, Port: port}
}

// send broadcasts a CHIRP message.
func (b *beacon) send(sid ServiceIdentifier, mt MessageType, port uint16) error {
	payload, err := encode(b.hostUUID, b.group, sid, mt, port)
	if err != nil {
		return fmt.Errorf("encode CHIRP message: %w", err)
	}
	if _, err := b.conn.WriteToUDP(payload, b.bcastTo); err != nil {
		return fmt.Errorf("broadcast CHIRP message: %w", err)
	}
	return nil
}

// receive reads one CHIRP datagram, bounded by whatever read deadline the
// caller has set on the connection. A nil, nil return indicates "nothing
// received before the deadline" and is not an error condition.
func (b *beacon) receive(buf []byte) (*Message, error) {
	n, cm, srcAddr, err := b.ipv4Conn.ReadFrom(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, nil
		}
		return nil, fmt.Errorf("receive CHIRP datagram: %w", err)
	}
	_ = cm // interface index available via cm.IfIndex; not required for correctness

	udpAddr, _ := srcAddr.(*net.UDPAddr)
	var fromIP net.IP
	if udpAddr != nil {
		fromIP = udpAddr.IP
	}

	msg, err := decode(buf[:n], fromIP)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (b *beacon) close() error {
	return b.conn.Close()
}
