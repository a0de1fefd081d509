package btcmultisig

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SignState tracks how far a RawTransaction has progressed.
type SignState int

const (
	Unsigned SignState = iota
	PartiallySigned
	FullySigned
	Broadcast
)

func (s SignState) String() string {
	switch s {
	case Unsigned:
		return "unsigned"
	case PartiallySigned:
		return "partially signed"
	case FullySigned:
		return "fully signed"
	case Broadcast:
		return "broadcast"
	default:
		return fmt.Sprintf("unknown state %d", int(s))
	}
}

// RawTransaction is a spend from a multisig output that is signed one key
// at a time by the node. Only a FullySigned transaction can be broadcast.
type RawTransaction struct {
	hex          string
	msgTx        *wire.MsgTx
	prevOuts     []PrevOut
	redeemScript []byte
	threshold    int
	signatures   int
	state        SignState
	txid         string
}

// NewRawTransaction has the node build an unsigned transaction spending utxo,
// which must pay to descriptor's address, to outputs.
func NewRawTransaction(node Node, descriptor *MultisigDescriptor, utxo *UTXO,
	outputs []Output) (*RawTransaction, error) {

	if len(outputs) == 0 {
		return nil, NewError(ValidationFailure, "createrawtransaction",
			"no outputs")
	}
	if descriptor.Threshold <= 0 {
		return nil, NewError(ValidationFailure, "createrawtransaction",
			"invalid signature threshold %d", descriptor.Threshold)
	}
	if utxo.Address != descriptor.Address {
		return nil, NewError(ValidationFailure, "createrawtransaction",
			"output %s:%d pays to %s, not to %s", utxo.TxID, utxo.Vout,
			utxo.Address, descriptor.Address)
	}
	var total btcutil.Amount
	for _, out := range outputs {
		if out.Amount <= 0 {
			return nil, NewError(ValidationFailure,
				"createrawtransaction", "non-positive amount %v to %s",
				out.Amount, out.Address)
		}
		total += out.Amount
	}
	if total > utxo.Amount {
		return nil, NewError(ValidationFailure, "createrawtransaction",
			"outputs total %v exceeds input %v", total, utxo.Amount)
	}

	redeemScript, err := hex.DecodeString(descriptor.RedeemScript)
	if err != nil {
		return nil, NewError(ValidationFailure, "createrawtransaction",
			"malformed redeem script: %v", err)
	}

	txHex, err := node.CreateRawTransaction(
		[]OutPoint{utxo.OutPoint()}, outputs,
	)
	if err != nil {
		return nil, err
	}
	msgTx, err := decodeTx("createrawtransaction", txHex)
	if err != nil {
		return nil, err
	}

	tx := &RawTransaction{
		hex:   txHex,
		msgTx: msgTx,
		prevOuts: []PrevOut{{
			TxID:         utxo.TxID,
			Vout:         utxo.Vout,
			ScriptPubKey: utxo.ScriptPubKey,
			RedeemScript: descriptor.RedeemScript,
			Amount:       utxo.Amount,
		}},
		redeemScript: redeemScript,
		threshold:    descriptor.Threshold,
		state:        Unsigned,
	}
	tx.signatures, err = tx.countSignatures(msgTx)
	if err != nil {
		return nil, err
	}
	if tx.signatures != 0 {
		return nil, NewError(ValidationFailure, "createrawtransaction",
			"node returned a transaction that already carries %d "+
				"signatures", tx.signatures)
	}

	log.Debugf("Built unsigned transaction %s", msgTx.TxHash())
	return tx, nil
}

// Sign has the node add the signature of privKey. The call fails, and the
// transaction is left untouched, unless exactly one new signature appears.
func (tx *RawTransaction) Sign(node Node, privKey string) error {
	if tx.state == FullySigned || tx.state == Broadcast {
		return NewError(ValidationFailure, "signrawtransactionwithkey",
			"transaction is already %v", tx.state)
	}

	res, err := node.SignRawTransactionWithKey(
		tx.hex, []string{privKey}, tx.prevOuts,
	)
	if err != nil {
		return err
	}
	for _, e := range res.Errors {
		log.Debugf("Signer reported for input %s:%d: %s", e.TxID,
			e.Vout, e.Error)
	}

	msgTx, err := decodeTx("signrawtransactionwithkey", res.Hex)
	if err != nil {
		return err
	}
	count, err := tx.countSignatures(msgTx)
	if err != nil {
		return err
	}
	if count != tx.signatures+1 {
		return NewError(ValidationFailure, "signrawtransactionwithkey",
			"signing pass left %d signatures, expected %d: key is "+
				"not part of the redeem script or was already used",
			count, tx.signatures+1)
	}
	if count == tx.threshold && !res.Complete {
		return NewError(ValidationFailure, "signrawtransactionwithkey",
			"node reports the transaction incomplete after %d of %d "+
				"signatures", count, tx.threshold)
	}

	tx.hex = res.Hex
	tx.msgTx = msgTx
	tx.signatures = count
	if count >= tx.threshold {
		tx.state = FullySigned
	} else {
		tx.state = PartiallySigned
	}

	log.Infof("Transaction %v: %d of %d signatures", tx.state, count,
		tx.threshold)
	return nil
}

// Broadcast submits a fully signed transaction and returns its txid.
func (tx *RawTransaction) Broadcast(node Node) (string, error) {
	if tx.state != FullySigned {
		return "", NewError(ValidationFailure, "sendrawtransaction",
			"transaction is %v with %d of %d signatures", tx.state,
			tx.signatures, tx.threshold)
	}

	txid, err := node.SendRawTransaction(tx.hex)
	if err != nil {
		return "", err
	}

	tx.txid = txid
	tx.state = Broadcast
	return txid, nil
}

// Hex returns the current serialized transaction.
func (tx *RawTransaction) Hex() string {
	return tx.hex
}

// MsgTx returns the decoded current transaction.
func (tx *RawTransaction) MsgTx() *wire.MsgTx {
	return tx.msgTx
}

// State returns the signing state.
func (tx *RawTransaction) State() SignState {
	return tx.state
}

// Signatures returns the number of signatures counted on every input.
func (tx *RawTransaction) Signatures() int {
	return tx.signatures
}

// Threshold returns the number of signatures needed to broadcast.
func (tx *RawTransaction) Threshold() int {
	return tx.threshold
}

// TxID returns the id assigned at broadcast, or "".
func (tx *RawTransaction) TxID() string {
	return tx.txid
}

// countSignatures returns the smallest number of signatures found across the
// inputs of msgTx. A P2SH multisig signature script is
// OP_0 <sig>... <placeholder>... <redeemScript>; placeholders are empty
// pushes.
func (tx *RawTransaction) countSignatures(msgTx *wire.MsgTx) (int, error) {
	if len(msgTx.TxIn) == 0 {
		return 0, NewError(ValidationFailure, "", "transaction has no inputs")
	}

	fewest := -1
	for i, txIn := range msgTx.TxIn {
		n, err := CountScriptSigSignatures(txIn.SignatureScript, tx.redeemScript)
		if err != nil {
			return 0, NewError(ValidationFailure, "", "input %d: %v", i, err)
		}
		if fewest == -1 || n < fewest {
			fewest = n
		}
	}
	return fewest, nil
}

// CountScriptSigSignatures counts the signatures in a P2SH multisig
// signature script that ends with redeemScript.
func CountScriptSigSignatures(sigScript, redeemScript []byte) (int, error) {
	if len(sigScript) == 0 {
		return 0, nil
	}

	pushes, err := txscript.PushedData(sigScript)
	if err != nil {
		return 0, err
	}
	if len(pushes) == 0 || !bytes.Equal(pushes[len(pushes)-1], redeemScript) {
		return 0, nil
	}

	count := 0
	for _, p := range pushes[:len(pushes)-1] {
		if len(p) > 0 {
			count++
		}
	}
	return count, nil
}

func decodeTx(op, txHex string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, NewError(TransportFailure, op, "node returned "+
			"malformed transaction hex: %v", err)
	}
	msgTx := wire.NewMsgTx(wire.TxVersion)
	if err := msgTx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, NewError(TransportFailure, op, "node returned an "+
			"undecodable transaction: %v", err)
	}
	return msgTx, nil
}
