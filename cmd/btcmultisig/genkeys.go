package main

import (
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btcd/chaincfg"

	btcmultisig "github.com/pablonlr/btc-rpc-multisig"
)

func genKeys(cfg *config, c *genKeysConfig) error {
	passphrase, err := walletPassphrase(&c.UnlockOptions)
	if err != nil {
		return err
	}
	client, err := connectToNode(cfg)
	if err != nil {
		return err
	}
	defer client.Shutdown()

	return runGenKeys(os.Stdout, client, cfg.net.Params, c, passphrase)
}

func runGenKeys(w io.Writer, node btcmultisig.Node, net *chaincfg.Params,
	c *genKeysConfig, passphrase string) error {

	keys, err := btcmultisig.GenerateKeys(node, net, &btcmultisig.KeyGenRequest{
		Count:         c.Count,
		Label:         c.Label,
		AddressType:   c.addrType,
		Passphrase:    passphrase,
		UnlockTimeout: c.UnlockTimeout,
	})
	if err != nil {
		return err
	}

	for i, k := range keys {
		fmt.Fprintf(w, "\nBrand New Address Pair: Number %d\n", i+1)
		printField(w, "Address", k.Address)
		printField(w, "Private Key", k.PrivateKey)
		printField(w, "Public Key", k.PublicKey)
		printField(w, "ScriptPubKey", k.ScriptPubKey)
	}
	return nil
}

// printField prints a labelled value with its length in characters.
func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s - %d chars - %s\n", label, len(value), value)
}
