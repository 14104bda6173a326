package ftp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

// PublicIpUrl is the url to get the public ip of the server
const PublicIpUrl = "https://api.ipify.org"

// GetServerPublicIP returns the public IPv4 of the server, used as
// PublicServerIPv4 behind NAT.
func GetServerPublicIP(ctx context.Context) ([4]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, PublicIpUrl, nil)
	if err != nil {
		return [4]byte{}, fmt.Errorf("error getting public ip: %w", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return [4]byte{}, fmt.Errorf("error getting public ip: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 64))
	if err != nil {
		return [4]byte{}, fmt.Errorf("error reading public ip: %w", err)
	}
	return ParseIPv4(strings.TrimSpace(string(body)))
}

// ParseIPv4 parses a dotted IPv4 address for PublicServerIPv4.
func ParseIPv4(s string) ([4]byte, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return [4]byte{}, fmt.Errorf("error parsing ip %q: %w", s, err)
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return [4]byte{}, fmt.Errorf("%s is not an IPv4 address", s)
	}
	return addr.As4(), nil
}
