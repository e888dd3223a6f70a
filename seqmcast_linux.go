//go:build linux

package rssl

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// udpMcastConn is a UDP socket joined to a multicast group.
// Reads and writes go directly to the socket with recvfrom and sendto.
type udpMcastConn struct {
	conn     *net.UDPConn
	raw      syscall.RawConn
	sendAddr unix.SockaddrInet4
	blocking bool
}

func resolveIPv4(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
		return nil, errors.Errorf("%q is not an IPv4 address", host)
	}
	addrs, err := net.LookupIP(host)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, ip := range addrs {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, errors.Errorf("no IPv4 address for %q", host)
}

// interfaceIPv4 resolves an interface given either by name or by address.
func interfaceIPv4(name string) (net.IP, error) {
	if name == "" {
		return net.IPv4zero.To4(), nil
	}
	if ifi, err := net.InterfaceByName(name); err == nil {
		addrs, err := ifi.Addrs()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok {
				if ip4 := ipn.IP.To4(); ip4 != nil {
					return ip4, nil
				}
			}
		}
		return nil, errors.Errorf("interface %q has no IPv4 address", name)
	}
	return resolveIPv4(name)
}

func dialSeqMcast(opts *ConnectOptions) (datagramConn, error) {
	raddr, rservice := opts.recvEndpoint()
	saddr, sservice := opts.sendEndpoint()
	rport, err := net.LookupPort("udp", rservice)
	if err != nil {
		return nil, newError(RetFailure, err, "0013 Invalid receive service name %q", rservice)
	}
	sport, err := net.LookupPort("udp", sservice)
	if err != nil {
		return nil, newError(RetFailure, err, "0013 Invalid send service name %q", sservice)
	}
	group, err := resolveIPv4(raddr)
	if err != nil {
		return nil, newError(RetFailure, err, "0013 Invalid receive address")
	}
	sendIP, err := resolveIPv4(saddr)
	if err != nil {
		return nil, newError(RetFailure, err, "0013 Invalid send address")
	}
	ifaceIP, err := interfaceIPv4(opts.interfaceName())
	if err != nil {
		return nil, newError(RetFailure, err, "0013 Invalid interface name")
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				s := int(fd)
				if serr = unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); serr != nil {
					return
				}
				if opts.SysSendBufSize > 0 {
					if serr = unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SysSendBufSize); serr != nil {
						return
					}
				}
				if opts.SysRecvBufSize > 0 {
					serr = unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_RCVBUF, opts.SysRecvBufSize)
				}
			})
			if err != nil {
				return err
			}
			return serr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort(group.String(), strconv.Itoa(rport)))
	if err != nil {
		return nil, newError(RetFailure, err, "0002 Unable to bind sequenced multicast socket")
	}
	uc := pc.(*net.UDPConn)
	raw, err := uc.SyscallConn()
	if err != nil {
		uc.Close()
		return nil, newError(RetFailure, err, "0002 Unable to access socket")
	}
	var serr error
	err = raw.Control(func(fd uintptr) {
		s := int(fd)
		var ifaddr [4]byte
		copy(ifaddr[:], ifaceIP)
		if group.IsMulticast() {
			mreq := &unix.IPMreq{}
			copy(mreq.Multiaddr[:], group)
			mreq.Interface = ifaddr
			if serr = unix.SetsockoptIPMreq(s, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq); serr != nil {
				return
			}
		}
		serr = unix.SetsockoptInet4Addr(s, unix.IPPROTO_IP, unix.IP_MULTICAST_IF, ifaddr)
	})
	if err == nil {
		err = serr
	}
	if err != nil {
		uc.Close()
		return nil, newError(RetFailure, err, "0002 Unable to join multicast group %s", group)
	}
	u := &udpMcastConn{
		conn:     uc,
		raw:      raw,
		blocking: opts.Blocking,
	}
	u.sendAddr.Port = sport
	copy(u.sendAddr.Addr[:], sendIP)
	return u, nil
}

func (u *udpMcastConn) recvFrom(p []byte) (n int, from NodeID, err error) {
	cerr := u.raw.Read(func(fd uintptr) bool {
		var sa unix.Sockaddr
		n, sa, err = unix.Recvfrom(int(fd), p, unix.MSG_DONTWAIT)
		if err == unix.EAGAIN && u.blocking {
			return false
		}
		if in4, ok := sa.(*unix.SockaddrInet4); ok {
			from = NodeID{Addr: binary.BigEndian.Uint32(in4.Addr[:]), Port: uint16(in4.Port)}
		}
		return true
	})
	if err == nil && cerr != nil {
		err = cerr
	}
	return
}

func (u *udpMcastConn) sendTo(p []byte) (err error) {
	cerr := u.raw.Write(func(fd uintptr) bool {
		err = unix.Sendto(int(fd), p, unix.MSG_DONTWAIT, &u.sendAddr)
		return !(err == unix.EAGAIN && u.blocking)
	})
	if err == nil && cerr != nil {
		err = cerr
	}
	return
}

func (u *udpMcastConn) setSockBuf(write bool, size int) (err error) {
	opt := unix.SO_RCVBUF
	if write {
		opt = unix.SO_SNDBUF
	}
	cerr := u.raw.Control(func(fd uintptr) {
		err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, size)
	})
	if err == nil {
		err = cerr
	}
	return
}

func (u *udpMcastConn) sockBufSizes() (send, recv int) {
	_ = u.raw.Control(func(fd uintptr) {
		send, _ = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF)
		recv, _ = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF)
	})
	return
}

func (u *udpMcastConn) Close() error {
	return u.conn.Close()
}
