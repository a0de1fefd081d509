package btcmultisig

import (
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network ties chain parameters to the port Bitcoin Core serves RPC on for
// that chain.
type Network struct {
	Name    string
	Params  *chaincfg.Params
	RPCPort string
}

var (
	BTC_MAINNET = &Network{Name: "mainnet", Params: &chaincfg.MainNetParams, RPCPort: "8332"}
	BTC_TESNET  = &Network{Name: "testnet3", Params: &chaincfg.TestNet3Params, RPCPort: "18332"}
	BTC_REGTEST = &Network{Name: "regtest", Params: &chaincfg.RegressionNetParams, RPCPort: "18443"}
	BTC_SIGNET  = &Network{Name: "signet", Params: &chaincfg.SigNetParams, RPCPort: "38332"}
)

var networks = []*Network{BTC_MAINNET, BTC_TESNET, BTC_REGTEST, BTC_SIGNET}

// NetworkByName looks a network up by name. "testnet" is accepted for
// testnet3.
func NetworkByName(name string) (*Network, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "testnet" {
		name = BTC_TESNET.Name
	}
	for _, n := range networks {
		if n.Name == name {
			return n, nil
		}
	}
	return nil, NewError(ValidationFailure, "", "unknown network %q", name)
}
