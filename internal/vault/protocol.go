package vault

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/lendhook/internal/errors"
)

// Protocol tags one of the supported lending vault families.
type Protocol string

const (
	Aave     Protocol = "aave"
	Compound Protocol = "compound"
	Fluid    Protocol = "fluid"
)

// Protocols lists the supported protocols in display order.
func Protocols() []Protocol {
	return []Protocol{Aave, Compound, Fluid}
}

func (p Protocol) Valid() bool {
	switch p {
	case Aave, Compound, Fluid:
		return true
	default:
		return false
	}
}

func ParseProtocol(input string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "aave", "aave-v3":
		return Aave, nil
	case "compound", "compound-v3", "comet":
		return Compound, nil
	case "fluid", "fluidx":
		return Fluid, nil
	case "":
		return "", clierr.New(clierr.CodeUsage, "protocol is required (aave|compound|fluid)")
	default:
		return "", clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported protocol: %s", input))
	}
}
