package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	btcmultisig "github.com/pablonlr/btc-rpc-multisig"
	"github.com/pablonlr/btc-rpc-multisig/nodetest"
)

var (
	testNet = &chaincfg.TestNet3Params

	// Keys of a 2-of-3 multisig on testnet3, in redeem script order.
	testPrivKeys = [btcmultisig.MultisigKeys]string{
		"9a7026f99a0452991d675cad5cf8ec4a1cba046cbc67f41f8b9fccdd993328a8",
		"cTG4L8A7QAr5FyhwW2sYg35ydGLTs8o19ypnBoNhzubKdLpwBZBN",
		"0101010101010101010101010101010101010101010101010101010101010101",
	}
	testPubKeys = []string{
		"0234bb639abd8f8a108013674a6d90582189afd06fc529147a854ec4dc43565e4f",
		"03bc50bc36da04ec132b6e4a3d01d54aa1d2d88c0aafa7246f51ead321853a0010",
		"031b84c5567b126440995d3ed5aaba0565d71e1834604819ff9c17f5e9d5dd078f",
	}
)

func TestRunGenKeys(t *testing.T) {
	node := nodetest.New(testNet)
	var out bytes.Buffer

	err := runGenKeys(&out, node, testNet, &genKeysConfig{
		Count:    3,
		addrType: btcmultisig.AddressLegacy,
	}, "")
	require.NoError(t, err)

	require.Equal(t, 3, strings.Count(out.String(), "Brand New Address Pair"))
	require.Equal(t, 3, strings.Count(out.String(), "Private Key - 52 chars"))
	require.Equal(t, 3, strings.Count(out.String(), "Public Key - 66 chars"))
	require.Equal(t, 3, node.CallCount("getnewaddress"))
}

func TestRunSpend(t *testing.T) {
	node := nodetest.New(testNet)
	ms, err := btcmultisig.NewMultiSigAddress(testNet, 2, testPubKeys...)
	require.NoError(t, err)
	_, err = node.Fund(ms.AddressEncoded, 8000)
	require.NoError(t, err)

	cfg := &spendConfig{
		Destination: "mxVFsFW5N4mu1HPkxPttorvocvzeZ7KZyk",
		addrType:    btcmultisig.AddressLegacy,
		amount:      100,
	}

	var out bytes.Buffer
	require.NoError(t, runSpend(&out, node, testNet, cfg, testPrivKeys, ""))

	s := out.String()
	require.Contains(t, s, "[0]: Private Key - 52 chars - ")
	require.Contains(t, s, "[2]: Validated - isvalid=true")
	require.Contains(t, s, "Multisig Address [2-of-3] - 35 chars - "+
		ms.AddressEncoded)
	require.Contains(t, s, "Unspent transactions in wallet: 1")
	require.Contains(t, s, ms.AddressEncoded+
		" 0.00008 BTC (6 confirmations)")
	require.Contains(t, s, "Raw Transaction (Unsigned)")
	require.Contains(t, s, "Signed Raw Transaction by Private Key 1")
	require.Contains(t, s, "Transaction broadcast with txid")
	require.Len(t, node.Broadcasts, 1)

	// Nothing left to spend; the keys and descriptor are still printed.
	out.Reset()
	err = runSpend(&out, node, testNet, cfg, testPrivKeys, "")
	require.True(t, btcmultisig.IsKind(err, btcmultisig.NotFound))
	require.Contains(t, out.String(), ms.AddressEncoded)
	require.NotContains(t, out.String(), "Raw Transaction")
}

func TestRunDerive(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runDerive(&out, nil, testNet, testPrivKeys[:]))
	for _, pk := range testPubKeys {
		require.Contains(t, out.String(), pk)
	}
	require.NotContains(t, out.String(), "Validated")

	node := nodetest.New(testNet)
	out.Reset()
	require.NoError(t, runDerive(&out, node, testNet, testPrivKeys[:1]))
	require.Contains(t, out.String(), "Validated by node")
	require.Equal(t, 1, node.CallCount("validateaddress"))

	err := runDerive(&out, nil, testNet, []string{"nope"})
	require.True(t, btcmultisig.IsKind(err, btcmultisig.ValidationFailure))
}

func TestRunMultisig(t *testing.T) {
	var out bytes.Buffer
	err := runMultisig(&out, testNet, &multisigConfig{
		PubKeys: []string{
			"0234bb639abd8f8a108013674a6d90582189afd06fc529147a854ec4dc43565e4f",
			"03bc50bc36da04ec132b6e4a3d01d54aa1d2d88c0aafa7246f51ead321853a0010",
			"022f07d5d42600587f01c9fd432a2ece38a66e7f56789e98fb11507d1a70efddf2",
		},
		Required: 2,
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "2NBvH4xmZYTPyDpotHWzHFy1QwY2G5C6HKP")
	require.Contains(t, out.String(), "Disassembly: 2 0234bb63")
	require.Contains(t, out.String(), "OP_CHECKMULTISIG")
}
