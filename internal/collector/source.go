// Package collector gathers ip-to-mac observations from network
// devices and feeds them into the inventory.
package collector

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// Source is one place observations come from: a router's neighbor
// table, a load balancer's dump file. Collect returns ip -> mac; a mac
// may be empty when the device saw the address without resolving it.
type Source interface {
	Name() string
	Collect(ctx context.Context) (map[string]string, error)
}

// NormalizeMAC canonicalizes any common MAC notation to lower-case
// colon-separated hex. An empty input stays empty.
func NormalizeMAC(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	hw, err := net.ParseMAC(raw)
	if err != nil {
		return "", fmt.Errorf("invalid mac %q: %w", raw, err)
	}
	return hw.String(), nil
}
