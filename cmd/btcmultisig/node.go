package main

import (
	"github.com/pablonlr/btc-rpc-multisig/bitcoind"
)

// connectToNode returns a client for the node described by cfg. The RPC
// password may come from the environment or a prompt. With a cookie file
// configured there is no prompt.
func connectToNode(cfg *config) (*bitcoind.Client, error) {
	store := newSecretStore(map[string]string{"rpcpass": cfg.RPCPass},
		cfg.RPCCookie == "")
	pass, err := optionalSecret(store, "rpcpass")
	if err != nil {
		return nil, err
	}

	log.Debugf("Using %s node at %s", cfg.net.Name, cfg.rpcHost())
	return bitcoind.New(bitcoind.Config{
		Host:       cfg.rpcHost(),
		User:       cfg.RPCUser,
		Pass:       pass,
		CookiePath: cfg.RPCCookie,
		Wallet:     cfg.Wallet,
		Timeout:    cfg.RPCTimeout,
	})
}

// walletPassphrase resolves the passphrase of opts. An empty result means
// the wallet is not unlocked.
func walletPassphrase(opts *UnlockOptions) (string, error) {
	store := newSecretStore(map[string]string{
		"walletpassphrase": opts.WalletPassphrase,
	}, opts.AskPass)
	return optionalSecret(store, "walletpassphrase")
}
