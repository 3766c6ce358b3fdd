package registry

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/lendhook/internal/errors"
	"github.com/ggonzalez94/lendhook/internal/id"
)

// Public endpoints for chains where at least one supported lending protocol
// is deployed.
var publicRPCByChainID = map[int64]string{
	1:      "https://eth.llamarpc.com",
	10:     "https://mainnet.optimism.io",
	56:     "https://bsc-dataseed.binance.org",
	137:    "https://polygon-rpc.com",
	8453:   "https://mainnet.base.org",
	42161:  "https://arb1.arbitrum.io/rpc",
	43114:  "https://api.avax.network/ext/bc/C/rpc",
	421614: "https://sepolia-rollup.arbitrum.io/rpc",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := publicRPCByChainID[chainID]
	return value, ok
}

// RPCURL returns override when set, otherwise the public endpoint for chain.
func RPCURL(chain id.Chain, override string) (string, error) {
	if v := strings.TrimSpace(override); v != "" {
		if !strings.Contains(v, "://") {
			return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("rpc url %q has no scheme", v))
		}
		return v, nil
	}
	if value, ok := DefaultRPCURL(chain.EVMChainID); ok {
		return value, nil
	}
	return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("no default rpc for %s (%s); set --rpc-url or chain.rpc_url", chain.Name, chain.CAIP2))
}
