package btcmultisig

import "github.com/btcsuite/btcd/btcutil"

// OutPoint references a transaction output.
type OutPoint struct {
	TxID string
	Vout uint32
}

type UTXO struct {
	TxID          string
	Vout          uint32
	Address       string
	Label         string
	Amount        btcutil.Amount
	ScriptPubKey  string
	RedeemScript  string
	Confirmations int64
	Spendable     bool
}

// OutPoint returns the reference used to spend u.
func (u *UTXO) OutPoint() OutPoint {
	return OutPoint{TxID: u.TxID, Vout: u.Vout}
}

type Output struct {
	Address string
	Amount  btcutil.Amount
}

// PrevOut describes a spent output to a signer that cannot look it up
// itself.
type PrevOut struct {
	TxID         string
	Vout         uint32
	ScriptPubKey string
	RedeemScript string
	Amount       btcutil.Amount
}

// FindUTXO returns the first output in utxos that pays to address. Later
// matches are ignored; a spend never aggregates inputs.
func FindUTXO(utxos []UTXO, address string) (*UTXO, error) {
	for i := range utxos {
		if utxos[i].Address != address {
			continue
		}

		u := utxos[i]
		log.Debugf("Selected unspent output %s:%d (%v) of %d candidates",
			u.TxID, u.Vout, u.Amount, len(utxos))
		return &u, nil
	}

	return nil, NewError(NotFound, "listunspent",
		"no unspent output pays to %s", address)
}
