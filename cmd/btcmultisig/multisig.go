package main

import (
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btcd/chaincfg"

	btcmultisig "github.com/pablonlr/btc-rpc-multisig"
)

func multisig(cfg *config, c *multisigConfig) error {
	return runMultisig(os.Stdout, cfg.net.Params, c)
}

func runMultisig(w io.Writer, net *chaincfg.Params, c *multisigConfig) error {
	addr, err := btcmultisig.NewMultiSigAddress(net, c.Required, c.PubKeys...)
	if err != nil {
		return err
	}

	printField(w, fmt.Sprintf("Multisig Address [%d-of-%d]",
		addr.SignaturesRequired(), len(c.PubKeys)), addr.AddressEncoded)
	printField(w, "Multisig RedeemScript", addr.RedeemScriptEncoded)
	fmt.Fprintf(w, "Disassembly: %s\n", addr.RedeemScriptDisasm)
	return nil
}
