package transport

import (
	"fmt"
	"net"

	sockaddr "github.com/hashicorp/go-sockaddr"
)

// ResolveAdvertiseAddr determines the address to advertise to peers.
//
// If advertiseAddr is already set it is used verbatim. Otherwise it is
// derived from bindAddr: if bindAddr has a non-empty, non-wildcard host
// that host is reused; if bindAddr has no usable host (eg ":7280" or
// "0.0.0.0:7280"), the node's private IP is autodetected.
func ResolveAdvertiseAddr(advertiseAddr, bindAddr string) (string, error) {
	if advertiseAddr != "" {
		return advertiseAddr, nil
	}

	host, port, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return "", fmt.Errorf("invalid bind addr: %s: %w", bindAddr, err)
	}

	if host != "" && host != "0.0.0.0" && host != "::" {
		return net.JoinHostPort(host, port), nil
	}

	privateIP, err := sockaddr.GetPrivateIP()
	if err != nil {
		return "", fmt.Errorf("detect private ip: %w", err)
	}
	if privateIP == "" {
		return "", fmt.Errorf("no private ip found to advertise")
	}
	return net.JoinHostPort(privateIP, port), nil
}
