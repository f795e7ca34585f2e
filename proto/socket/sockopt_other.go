//go:build !unix && !windows

package socket

import "net"

func setBroadcast(_ *net.UDPConn) error {
	return nil
}
