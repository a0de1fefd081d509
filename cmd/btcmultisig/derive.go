package main

import (
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btcd/chaincfg"

	btcmultisig "github.com/pablonlr/btc-rpc-multisig"
)

func derive(cfg *config, c *deriveConfig) error {
	var node btcmultisig.Node
	if c.Validate {
		client, err := connectToNode(cfg)
		if err != nil {
			return err
		}
		defer client.Shutdown()
		node = client
	}

	return runDerive(os.Stdout, node, cfg.net.Params, c.PrivKeys)
}

// runDerive prints the public key and address of each private key. With a
// nil node nothing is cross-checked.
func runDerive(w io.Writer, node btcmultisig.Node, net *chaincfg.Params,
	privKeys []string) error {

	for i, privKey := range privKeys {
		key, err := btcmultisig.DeriveKey(privKey, net)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "-- Key %d\n", i)
		printField(w, "Public Key", key.PublicKey)
		printField(w, "Address", key.Address)
		printField(w, "ScriptPubKey", key.ScriptPubKey)

		if node == nil {
			continue
		}
		if _, err := btcmultisig.VerifyDerivedKey(node, key); err != nil {
			return err
		}
		fmt.Fprintln(w, "Validated by node")
	}
	return nil
}
