// Package nodetest provides an in-memory btcmultisig.Node for tests. It
// holds real keys and produces real signatures, so the hex it hands out can
// be decoded and inspected like bitcoind's.
package nodetest

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	btcmultisig "github.com/pablonlr/btc-rpc-multisig"
)

// Bitcoin Core RPC codes the fake emits that btcjson does not name.
const (
	codeVerifyRejected btcjson.RPCErrorCode = -26
	codeWallet         btcjson.RPCErrorCode = -4
)

// Call records one method invocation.
type Call struct {
	Method string
	Args   []interface{}
}

// Node is an in-memory wallet and mempool. The zero value is not usable;
// call New.
type Node struct {
	Net *chaincfg.Params

	// Passphrase, when set, makes the wallet encrypted: key material is
	// only handed out after a matching WalletPassphrase.
	Passphrase string

	// Unspent is returned by ListUnspent. Broadcast spends are removed.
	Unspent []btcmultisig.UTXO

	// AddressTypeOverride makes GetNewAddress ignore the requested type.
	AddressTypeOverride btcmultisig.AddressType

	// Broadcasts holds every accepted transaction hex in order.
	Broadcasts []string

	Calls []Call

	unlocked   bool
	keys       map[string]*btcutil.WIF
	registered map[string]*btcmultisig.MultiSigAddress
	spent      map[wire.OutPoint]struct{}
	fundings   uint32
}

var _ btcmultisig.Node = (*Node)(nil)

// New returns an empty unencrypted wallet on net.
func New(net *chaincfg.Params) *Node {
	return &Node{
		Net:        net,
		keys:       make(map[string]*btcutil.WIF),
		registered: make(map[string]*btcmultisig.MultiSigAddress),
		spent:      make(map[wire.OutPoint]struct{}),
	}
}

// CallCount returns how many times method was called.
func (n *Node) CallCount(method string) int {
	count := 0
	for _, c := range n.Calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// ImportKey adds a private key to the wallet and returns its P2PKH address.
func (n *Node) ImportKey(priv *btcec.PrivateKey) (*btcutil.WIF, string, error) {
	wif, err := btcutil.NewWIF(priv, n.Net, true)
	if err != nil {
		return nil, "", err
	}
	addr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(wif.SerializePubKey()), n.Net,
	)
	if err != nil {
		return nil, "", err
	}
	n.keys[addr.EncodeAddress()] = wif
	return wif, addr.EncodeAddress(), nil
}

// Fund adds an unspent output of amount paying to address.
func (n *Node) Fund(address string, amount btcutil.Amount) (*btcmultisig.UTXO, error) {
	addr, err := btcutil.DecodeAddress(address, n.Net)
	if err != nil {
		return nil, err
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	// Every funding gets a fresh txid, even after earlier ones are spent.
	n.fundings++
	seed := make([]byte, 4, 4+len(address))
	binary.BigEndian.PutUint32(seed, n.fundings)
	txid := chainhash.HashH(append(seed, address...))

	utxo := btcmultisig.UTXO{
		TxID:          txid.String(),
		Vout:          0,
		Address:       address,
		Amount:        amount,
		ScriptPubKey:  hex.EncodeToString(pkScript),
		Confirmations: 6,
		Spendable:     true,
	}
	if ms, ok := n.registered[address]; ok {
		utxo.RedeemScript = ms.RedeemScriptEncoded
	}
	n.Unspent = append(n.Unspent, utxo)
	return &utxo, nil
}

func (n *Node) record(method string, args ...interface{}) {
	n.Calls = append(n.Calls, Call{Method: method, Args: args})
}

func rpcError(op string, code btcjson.RPCErrorCode, msg string) error {
	return btcmultisig.ClassifyRPCError(op, btcjson.NewRPCError(code, msg))
}

func (n *Node) WalletPassphrase(passphrase string, timeout time.Duration) error {
	n.record("walletpassphrase", timeout)

	if n.Passphrase == "" {
		return rpcError("walletpassphrase", -15, "Error: running with "+
			"an unencrypted wallet, but walletpassphrase was called.")
	}
	if passphrase != n.Passphrase {
		return rpcError("walletpassphrase",
			btcjson.ErrRPCWalletPassphraseIncorrect,
			"Error: The wallet passphrase entered was incorrect.")
	}
	n.unlocked = true
	return nil
}

func (n *Node) checkUnlocked(op string) error {
	if n.Passphrase != "" && !n.unlocked {
		return rpcError(op, btcjson.ErrRPCWalletUnlockNeeded,
			"Error: Please enter the wallet passphrase with "+
				"walletpassphrase first.")
	}
	return nil
}

func (n *Node) GetNewAddress(label string,
	addrType btcmultisig.AddressType) (string, error) {

	n.record("getnewaddress", label, addrType)
	if err := n.checkUnlocked("getnewaddress"); err != nil {
		return "", err
	}
	if n.AddressTypeOverride != "" {
		addrType = n.AddressTypeOverride
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", err
	}
	wif, err := btcutil.NewWIF(priv, n.Net, true)
	if err != nil {
		return "", err
	}
	keyHash := btcutil.Hash160(wif.SerializePubKey())

	var addr btcutil.Address
	switch addrType {
	case btcmultisig.AddressLegacy:
		addr, err = btcutil.NewAddressPubKeyHash(keyHash, n.Net)
	case btcmultisig.AddressBech32:
		addr, err = btcutil.NewAddressWitnessPubKeyHash(keyHash, n.Net)
	case btcmultisig.AddressP2SHSegwit:
		var program []byte
		program, err = txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).AddData(keyHash).Script()
		if err == nil {
			addr, err = btcutil.NewAddressScriptHash(program, n.Net)
		}
	default:
		return "", rpcError("getnewaddress",
			btcjson.ErrRPCInvalidParameter,
			"Unknown address type '"+string(addrType)+"'")
	}
	if err != nil {
		return "", err
	}

	n.keys[addr.EncodeAddress()] = wif
	return addr.EncodeAddress(), nil
}

func (n *Node) DumpPrivKey(address string) (string, error) {
	n.record("dumpprivkey", address)
	if err := n.checkUnlocked("dumpprivkey"); err != nil {
		return "", err
	}

	if _, err := btcutil.DecodeAddress(address, n.Net); err != nil {
		return "", rpcError("dumpprivkey",
			btcjson.ErrRPCInvalidAddressOrKey, "Invalid Bitcoin address")
	}
	wif, ok := n.keys[address]
	if !ok {
		return "", rpcError("dumpprivkey", codeWallet,
			"Private key for address "+address+" is not known")
	}
	return wif.String(), nil
}

func (n *Node) ValidateAddress(address string) (*btcmultisig.AddressValidation, error) {
	n.record("validateaddress", address)

	addr, err := btcutil.DecodeAddress(address, n.Net)
	if err != nil || !addr.IsForNet(n.Net) {
		return &btcmultisig.AddressValidation{IsValid: false}, nil
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return &btcmultisig.AddressValidation{IsValid: false}, nil
	}

	res := &btcmultisig.AddressValidation{
		IsValid:      true,
		Address:      addr.EncodeAddress(),
		ScriptPubKey: hex.EncodeToString(pkScript),
	}
	switch addr.(type) {
	case *btcutil.AddressScriptHash:
		res.IsScript = true
	case *btcutil.AddressWitnessScriptHash:
		res.IsScript = true
		res.IsWitness = true
	case *btcutil.AddressWitnessPubKeyHash:
		res.IsWitness = true
	}
	return res, nil
}

func (n *Node) multisig(op string, required int, pubKeys []string,
	addrType btcmultisig.AddressType) (*btcmultisig.MultiSigAddress, error) {

	if addrType != btcmultisig.AddressLegacy {
		return nil, rpcError(op, btcjson.ErrRPCInvalidParameter,
			"only legacy multisig addresses are supported")
	}
	ms, err := btcmultisig.NewMultiSigAddress(n.Net, required, pubKeys...)
	if err != nil {
		return nil, rpcError(op, btcjson.ErrRPCInvalidAddressOrKey,
			err.Error())
	}
	return ms, nil
}

func (n *Node) CreateMultisig(required int, pubKeys []string,
	addrType btcmultisig.AddressType) (*btcmultisig.MultisigResult, error) {

	n.record("createmultisig", required, append([]string(nil), pubKeys...),
		addrType)

	ms, err := n.multisig("createmultisig", required, pubKeys, addrType)
	if err != nil {
		return nil, err
	}
	return &btcmultisig.MultisigResult{
		Address:      ms.AddressEncoded,
		RedeemScript: ms.RedeemScriptEncoded,
	}, nil
}

func (n *Node) AddMultisigAddress(required int, pubKeys []string,
	label string,
	addrType btcmultisig.AddressType) (*btcmultisig.MultisigResult, error) {

	n.record("addmultisigaddress", required,
		append([]string(nil), pubKeys...), label, addrType)

	ms, err := n.multisig("addmultisigaddress", required, pubKeys, addrType)
	if err != nil {
		return nil, err
	}
	n.registered[ms.AddressEncoded] = ms
	return &btcmultisig.MultisigResult{
		Address:      ms.AddressEncoded,
		RedeemScript: ms.RedeemScriptEncoded,
	}, nil
}

func (n *Node) ListUnspent() ([]btcmultisig.UTXO, error) {
	n.record("listunspent")
	return append([]btcmultisig.UTXO(nil), n.Unspent...), nil
}

func (n *Node) CreateRawTransaction(inputs []btcmultisig.OutPoint,
	outputs []btcmultisig.Output) (string, error) {

	n.record("createrawtransaction", inputs, outputs)

	msgTx := wire.NewMsgTx(wire.TxVersion)
	for _, in := range inputs {
		hash, err := chainhash.NewHashFromStr(in.TxID)
		if err != nil {
			return "", rpcError("createrawtransaction",
				btcjson.ErrRPCInvalidParameter,
				"txid must be of length 64")
		}
		msgTx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, in.Vout), nil, nil))
	}
	for _, out := range outputs {
		addr, err := btcutil.DecodeAddress(out.Address, n.Net)
		if err != nil {
			return "", rpcError("createrawtransaction",
				btcjson.ErrRPCInvalidAddressOrKey,
				"Invalid Bitcoin address: "+out.Address)
		}
		pkScript, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return "", err
		}
		msgTx.AddTxOut(wire.NewTxOut(int64(out.Amount), pkScript))
	}

	return serialize(msgTx), nil
}

func (n *Node) SignRawTransactionWithKey(txHex string, privKeys []string,
	prevOuts []btcmultisig.PrevOut) (*btcmultisig.SignResult, error) {

	n.record("signrawtransactionwithkey", txHex, len(privKeys), prevOuts)

	msgTx, err := deserialize(txHex)
	if err != nil {
		return nil, rpcError("signrawtransactionwithkey",
			btcjson.ErrRPCDeserialization, "TX decode failed")
	}
	wifs := make([]*btcutil.WIF, 0, len(privKeys))
	for _, k := range privKeys {
		wif, err := btcutil.DecodeWIF(k)
		if err != nil {
			return nil, rpcError("signrawtransactionwithkey",
				btcjson.ErrRPCInvalidAddressOrKey, "Invalid private key")
		}
		wifs = append(wifs, wif)
	}

	res := &btcmultisig.SignResult{Complete: true}
	for idx, txIn := range msgTx.TxIn {
		prev := findPrevOut(prevOuts, &txIn.PreviousOutPoint)
		if prev == nil {
			res.Complete = false
			res.Errors = append(res.Errors, signError(txIn,
				"Input not found or already spent"))
			continue
		}
		redeemScript, err := hex.DecodeString(prev.RedeemScript)
		if err != nil {
			return nil, rpcError("signrawtransactionwithkey",
				btcjson.ErrRPCDeserialization, "redeemScript must be hex")
		}
		ms, pubKeys, required, err := n.parseRedeemScript(redeemScript)
		if err != nil {
			return nil, rpcError("signrawtransactionwithkey",
				btcjson.ErrRPCInvalidParameter, err.Error())
		}

		// Like bitcoind, start from whatever the hex already carries.
		inputSigs, err := scriptSigSignatures(msgTx, idx, redeemScript,
			pubKeys)
		if err != nil {
			return nil, err
		}
		for _, wif := range wifs {
			keyIdx := ms.KeyIndex(wif.PrivKey.PubKey())
			if keyIdx < 0 {
				continue
			}
			if _, done := inputSigs[keyIdx]; done {
				continue
			}
			sig, err := txscript.RawTxInSignature(
				msgTx, idx, redeemScript, txscript.SigHashAll,
				wif.PrivKey,
			)
			if err != nil {
				return nil, err
			}
			inputSigs[keyIdx] = sig
		}

		sigScript, err := buildSigScript(inputSigs, required, redeemScript)
		if err != nil {
			return nil, err
		}
		txIn.SignatureScript = sigScript

		if len(inputSigs) < required {
			res.Complete = false
			res.Errors = append(res.Errors, signError(txIn,
				"Unable to sign input, invalid stack size "+
					"(possibly missing key)"))
		}
	}

	res.Hex = serialize(msgTx)
	return res, nil
}

func (n *Node) SendRawTransaction(txHex string) (string, error) {
	n.record("sendrawtransaction", txHex)

	msgTx, err := deserialize(txHex)
	if err != nil {
		return "", rpcError("sendrawtransaction",
			btcjson.ErrRPCDeserialization, "TX decode failed")
	}

	for _, txIn := range msgTx.TxIn {
		if _, ok := n.spent[txIn.PreviousOutPoint]; ok {
			return "", rpcError("sendrawtransaction",
				btcjson.ErrRPCVerify, "bad-txns-inputs-missingorspent")
		}
		pushes, err := txscript.PushedData(txIn.SignatureScript)
		if err != nil || len(pushes) == 0 {
			return "", rpcError("sendrawtransaction", codeVerifyRejected,
				"mandatory-script-verify-flag-failed (Operation not "+
					"valid with the current stack size)")
		}
		redeemScript := pushes[len(pushes)-1]
		_, _, required, err := n.parseRedeemScript(redeemScript)
		if err != nil {
			return "", rpcError("sendrawtransaction", codeVerifyRejected,
				"mandatory-script-verify-flag-failed (Script "+
					"evaluated without error but finished with a "+
					"false/empty top stack element)")
		}
		count, err := btcmultisig.CountScriptSigSignatures(
			txIn.SignatureScript, redeemScript,
		)
		if err != nil || count < required {
			return "", rpcError("sendrawtransaction", codeVerifyRejected,
				"mandatory-script-verify-flag-failed (Signature "+
					"must be zero for failed CHECK(MULTI)SIG operation)")
		}
	}

	for _, txIn := range msgTx.TxIn {
		n.spent[txIn.PreviousOutPoint] = struct{}{}
		n.removeUnspent(&txIn.PreviousOutPoint)
	}
	n.Broadcasts = append(n.Broadcasts, txHex)
	return msgTx.TxHash().String(), nil
}

func (n *Node) removeUnspent(op *wire.OutPoint) {
	kept := n.Unspent[:0]
	for _, u := range n.Unspent {
		if u.TxID == op.Hash.String() && u.Vout == op.Index {
			continue
		}
		kept = append(kept, u)
	}
	n.Unspent = kept
}

func (n *Node) parseRedeemScript(script []byte) (*btcmultisig.MultiSigAddress,
	[]*btcec.PublicKey, int, error) {

	class, addrs, required, err := txscript.ExtractPkScriptAddrs(script, n.Net)
	if err != nil {
		return nil, nil, 0, err
	}
	if class != txscript.MultiSigTy {
		return nil, nil, 0, errNotMultisig
	}
	encoded := make([]string, 0, len(addrs))
	pubKeys := make([]*btcec.PublicKey, 0, len(addrs))
	for _, a := range addrs {
		pk, ok := a.(*btcutil.AddressPubKey)
		if !ok {
			return nil, nil, 0, errNotMultisig
		}
		encoded = append(encoded, hex.EncodeToString(a.ScriptAddress()))
		pubKeys = append(pubKeys, pk.PubKey())
	}
	ms, err := btcmultisig.NewMultiSigAddress(n.Net, required, encoded...)
	if err != nil {
		return nil, nil, 0, err
	}
	return ms, pubKeys, required, nil
}

// scriptSigSignatures recovers the signatures already in the scriptSig of
// input idx, keyed by the position of the key that made them. Pushes that
// verify against no key are dropped.
func scriptSigSignatures(msgTx *wire.MsgTx, idx int, redeemScript []byte,
	pubKeys []*btcec.PublicKey) (map[int][]byte, error) {

	sigs := make(map[int][]byte)
	pushes, err := txscript.PushedData(msgTx.TxIn[idx].SignatureScript)
	if err != nil || len(pushes) < 2 ||
		!bytes.Equal(pushes[len(pushes)-1], redeemScript) {

		return sigs, nil
	}

	hash, err := txscript.CalcSignatureHash(
		redeemScript, txscript.SigHashAll, msgTx, idx,
	)
	if err != nil {
		return nil, err
	}

	for _, push := range pushes[1 : len(pushes)-1] {
		if len(push) < 2 ||
			txscript.SigHashType(push[len(push)-1]) != txscript.SigHashAll {

			continue
		}
		sig, err := ecdsa.ParseDERSignature(push[:len(push)-1])
		if err != nil {
			continue
		}
		for keyIdx, pubKey := range pubKeys {
			if sig.Verify(hash, pubKey) {
				sigs[keyIdx] = push
				break
			}
		}
	}
	return sigs, nil
}

var errNotMultisig = btcjson.NewRPCError(btcjson.ErrRPCInvalidParameter,
	"redeemScript is not a multisig script")

// buildSigScript lays signatures out in key order, padding with empty
// pushes up to the threshold, followed by the redeem script.
func buildSigScript(sigs map[int][]byte, required int, redeemScript []byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_FALSE)

	added := 0
	for keyIdx := 0; keyIdx < 16 && added < required; keyIdx++ {
		sig, ok := sigs[keyIdx]
		if !ok {
			continue
		}
		builder.AddData(sig)
		added++
	}
	for ; added < required; added++ {
		builder.AddOp(txscript.OP_0)
	}
	builder.AddData(redeemScript)
	return builder.Script()
}

func findPrevOut(prevOuts []btcmultisig.PrevOut, op *wire.OutPoint) *btcmultisig.PrevOut {
	for i := range prevOuts {
		if prevOuts[i].TxID == op.Hash.String() && prevOuts[i].Vout == op.Index {
			return &prevOuts[i]
		}
	}
	return nil
}

func signError(txIn *wire.TxIn, msg string) btcmultisig.SignError {
	return btcmultisig.SignError{
		TxID:      txIn.PreviousOutPoint.Hash.String(),
		Vout:      txIn.PreviousOutPoint.Index,
		ScriptSig: hex.EncodeToString(txIn.SignatureScript),
		Sequence:  txIn.Sequence,
		Error:     msg,
	}
}

func serialize(msgTx *wire.MsgTx) string {
	var buf bytes.Buffer
	buf.Grow(msgTx.SerializeSize())
	_ = msgTx.Serialize(&buf)
	return hex.EncodeToString(buf.Bytes())
}

func deserialize(txHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, err
	}
	msgTx := wire.NewMsgTx(wire.TxVersion)
	if err := msgTx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return msgTx, nil
}
