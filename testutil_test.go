package btcmultisig_test

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	btcmultisig "github.com/pablonlr/btc-rpc-multisig"
	"github.com/pablonlr/btc-rpc-multisig/nodetest"
)

var testNet = &chaincfg.TestNet3Params

// testKey returns a deterministic private key whose bytes are all b.
func testKey(b byte) *btcec.PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{b}, 32))
	return priv
}

func testWIF(t *testing.T, b byte) string {
	t.Helper()

	wif, err := btcutil.NewWIF(testKey(b), testNet, true)
	require.NoError(t, err)
	return wif.String()
}

func testPubKey(b byte) string {
	return hex.EncodeToString(testKey(b).PubKey().SerializeCompressed())
}

func testAddress(t *testing.T, b byte) string {
	t.Helper()

	key, err := btcmultisig.DeriveKey(testWIF(t, b), testNet)
	require.NoError(t, err)
	return key.Address
}

// multisigFixture is a funded 2-of-3 setup on a fake node.
type multisigFixture struct {
	node       *nodetest.Node
	wifs       [btcmultisig.MultisigKeys]string
	descriptor *btcmultisig.MultisigDescriptor
	utxo       *btcmultisig.UTXO
}

func newMultisigFixture(t *testing.T, amount btcutil.Amount) *multisigFixture {
	t.Helper()

	node := nodetest.New(testNet)
	f := &multisigFixture{node: node}

	var pubKeys [btcmultisig.MultisigKeys]string
	for i := range f.wifs {
		f.wifs[i] = testWIF(t, byte(i+1))
		pubKeys[i] = testPubKey(byte(i + 1))
	}

	desc, err := btcmultisig.BuildMultisig(
		node, pubKeys, "", btcmultisig.AddressLegacy,
	)
	require.NoError(t, err)
	f.descriptor = desc

	f.utxo, err = node.Fund(desc.Address, amount)
	require.NoError(t, err)

	return f
}
