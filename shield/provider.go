package shield

import (
	"fmt"
	"strings"
)

// Provider is the closed set of relays a shielded transaction can be wrapped for.
type Provider int

const (
	BloxRoute Provider = iota + 1
	QuickNode
	Flashbots
)

func (p Provider) String() string {
	switch p {
	case BloxRoute:
		return "bloxroute"
	case QuickNode:
		return "quicknode"
	case Flashbots:
		return "flashbots"
	}
	return fmt.Sprintf("Provider(%d)", int(p))
}

// MarshalText renders the provider by name.
func (p Provider) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParseProvider maps a configuration name to a Provider.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bloxroute", "bloxroute.com", "blxr":
		return BloxRoute, nil
	case "quicknode":
		return QuickNode, nil
	case "flashbots":
		return Flashbots, nil
	}
	return 0, fmt.Errorf("unknown relay provider %q", name)
}
