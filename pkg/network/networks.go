package network

import "math/big"

// Display names for chains the wallet may report.
var knownNetworks = map[int64]string{
	1:        "Mainnet",
	3:        "Ropsten",
	4:        "Rinkeby",
	5:        "Goerli",
	10:       "Optimism",
	42:       "Kovan",
	56:       "BSC Mainnet",
	97:       "BSC Testnet",
	137:      "Polygon Mainnet",
	8453:     "Base",
	42161:    "Arbitrum One",
	43113:    "Avalanche Fuji Testnet",
	43114:    "Avalanche Mainnet",
	80001:    "Polygon Mumbai Testnet",
	80002:    "Polygon Amoy Testnet",
	11155111: "Sepolia",
}

const unknownNetwork = "Unknown network"

// DisplayName returns a human readable name for a chain id.
func DisplayName(id *big.Int) string {
	if id == nil {
		return "Not connected"
	}
	if !id.IsInt64() {
		return unknownNetwork
	}
	if name, ok := knownNetworks[id.Int64()]; ok {
		return name
	}
	return unknownNetwork
}
