package btcmultisig_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"

	btcmultisig "github.com/pablonlr/btc-rpc-multisig"
	"github.com/pablonlr/btc-rpc-multisig/nodetest"
)

func TestNewMultiSigAddress(t *testing.T) {
	t.Parallel()

	ms, err := btcmultisig.NewMultiSigAddress(
		testNet, 2, testPubKey(1), testPubKey(2), testPubKey(3),
	)
	require.NoError(t, err)

	addr, err := btcutil.DecodeAddress(ms.AddressEncoded, testNet)
	require.NoError(t, err)
	require.IsType(t, &btcutil.AddressScriptHash{}, addr)
	require.Equal(t, 2, ms.SignaturesRequired())
	require.Contains(t, ms.RedeemScriptDisasm, "OP_CHECKMULTISIG")

	info, err := btcmultisig.DescribeRedeemScript(ms.RedeemScriptEncoded)
	require.NoError(t, err)
	require.Equal(t, 2, info.Required)
	require.Equal(t, 3, info.PublicKeys)

	desc, err := ms.Descriptor()
	require.NoError(t, err)
	require.Equal(t, [btcmultisig.MultisigKeys]string{
		testPubKey(1), testPubKey(2), testPubKey(3),
	}, desc.PublicKeys)
	require.Equal(t, ms.AddressEncoded, desc.Address)

	require.Equal(t, 1, ms.KeyIndex(testKey(2).PubKey()))
	require.Equal(t, -1, ms.KeyIndex(testKey(9).PubKey()))
}

func TestNewMultiSigAddressErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		required int
		keys     []string
	}{
		{
			name:     "threshold above key count",
			required: 4,
			keys:     []string{testPubKey(1), testPubKey(2), testPubKey(3)},
		},
		{
			name:     "zero threshold",
			required: 0,
			keys:     []string{testPubKey(1), testPubKey(2), testPubKey(3)},
		},
		{
			name:     "no keys",
			required: 0,
		},
		{
			name:     "malformed key",
			required: 2,
			keys:     []string{testPubKey(1), "02zz", testPubKey(3)},
		},
		{
			name:     "bad key prefix",
			required: 2,
			keys:     []string{testPubKey(1), "05" + testPubKey(2)[2:], testPubKey(3)},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := btcmultisig.NewMultiSigAddress(
				testNet, tc.required, tc.keys...,
			)
			require.True(t, btcmultisig.IsKind(
				err, btcmultisig.ValidationFailure,
			))
		})
	}
}

// Key order is part of the script. Two orderings of one key set are never
// assumed to describe the same address.
func TestMultisigKeyOrder(t *testing.T) {
	t.Parallel()

	node := nodetest.New(testNet)

	forward := [btcmultisig.MultisigKeys]string{
		testPubKey(1), testPubKey(2), testPubKey(3),
	}
	reversed := [btcmultisig.MultisigKeys]string{
		testPubKey(3), testPubKey(2), testPubKey(1),
	}

	a, err := btcmultisig.BuildMultisig(node, forward, "", btcmultisig.AddressLegacy)
	require.NoError(t, err)
	b, err := btcmultisig.BuildMultisig(node, reversed, "", btcmultisig.AddressLegacy)
	require.NoError(t, err)

	require.NotEqual(t, a.RedeemScript, b.RedeemScript)
	require.Equal(t, forward, a.PublicKeys)
	require.Equal(t, reversed, b.PublicKeys)
}

func TestBuildMultisig(t *testing.T) {
	t.Parallel()

	node := nodetest.New(testNet)
	pubKeys := [btcmultisig.MultisigKeys]string{
		testPubKey(1), testPubKey(2), testPubKey(3),
	}

	desc, err := btcmultisig.BuildMultisig(
		node, pubKeys, "tutorial", btcmultisig.AddressLegacy,
	)
	require.NoError(t, err)
	require.Equal(t, btcmultisig.MultisigThreshold, desc.Threshold)

	local, err := btcmultisig.NewMultiSigAddress(testNet, 2, pubKeys[:]...)
	require.NoError(t, err)
	require.Equal(t, local.AddressEncoded, desc.Address)
	require.Equal(t, local.RedeemScriptEncoded, desc.RedeemScript)

	// Inspection first, registration second, same key order.
	require.Len(t, node.Calls, 2)
	require.Equal(t, "createmultisig", node.Calls[0].Method)
	require.Equal(t, "addmultisigaddress", node.Calls[1].Method)
	require.Equal(t, pubKeys[:], node.Calls[0].Args[1])
	require.Equal(t, pubKeys[:], node.Calls[1].Args[1])
	require.Equal(t, "tutorial", node.Calls[1].Args[2])
}

// divergingNode registers a different address than it computes.
type divergingNode struct {
	*nodetest.Node
}

func (n divergingNode) AddMultisigAddress(required int, pubKeys []string,
	label string,
	addrType btcmultisig.AddressType) (*btcmultisig.MultisigResult, error) {

	rotated := append(append([]string(nil), pubKeys[1:]...), pubKeys[0])
	return n.Node.AddMultisigAddress(required, rotated, label, addrType)
}

func TestBuildMultisigRejectsDivergingAddresses(t *testing.T) {
	t.Parallel()

	node := divergingNode{nodetest.New(testNet)}
	_, err := btcmultisig.BuildMultisig(node, [btcmultisig.MultisigKeys]string{
		testPubKey(1), testPubKey(2), testPubKey(3),
	}, "", btcmultisig.AddressLegacy)
	require.True(t, btcmultisig.IsKind(err, btcmultisig.ValidationFailure))
}

// scriptDivergingNode agrees on the address but not on the redeem script.
type scriptDivergingNode struct {
	*nodetest.Node
}

func (n scriptDivergingNode) AddMultisigAddress(required int,
	pubKeys []string, label string,
	addrType btcmultisig.AddressType) (*btcmultisig.MultisigResult, error) {

	res, err := n.Node.AddMultisigAddress(required, pubKeys, label, addrType)
	if err != nil {
		return nil, err
	}
	res.RedeemScript = "5221aa21bb21cc53ae"
	return res, nil
}

func TestBuildMultisigRejectsDivergingRedeemScripts(t *testing.T) {
	t.Parallel()

	node := scriptDivergingNode{nodetest.New(testNet)}
	_, err := btcmultisig.BuildMultisig(node, [btcmultisig.MultisigKeys]string{
		testPubKey(1), testPubKey(2), testPubKey(3),
	}, "", btcmultisig.AddressLegacy)
	require.True(t, btcmultisig.IsKind(err, btcmultisig.ValidationFailure))
}

func TestBuildMultisigPropagatesNodeErrors(t *testing.T) {
	t.Parallel()

	node := nodetest.New(testNet)
	_, err := btcmultisig.BuildMultisig(node, [btcmultisig.MultisigKeys]string{
		testPubKey(1), "00", testPubKey(3),
	}, "", btcmultisig.AddressLegacy)
	require.True(t, btcmultisig.IsKind(err, btcmultisig.NotFound))
	require.Equal(t, 0, node.CallCount("addmultisigaddress"))
}

func TestDescribeRedeemScriptRejectsNonMultisig(t *testing.T) {
	t.Parallel()

	_, err := btcmultisig.DescribeRedeemScript("zz")
	require.Error(t, err)

	// OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG
	_, err = btcmultisig.DescribeRedeemScript(
		"76a914000000000000000000000000000000000000000088ac",
	)
	require.Error(t, err)
}
