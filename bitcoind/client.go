// Package bitcoind implements btcmultisig.Node over the JSON-RPC interface of
// a Bitcoin Core wallet.
package bitcoind

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"

	btcmultisig "github.com/pablonlr/btc-rpc-multisig"
)

// Config describes how to reach the node.
type Config struct {
	// Host is host:port of the RPC server.
	Host string
	User string
	Pass string

	// CookiePath is the .cookie file bitcoind writes when no rpcpassword
	// is configured. It is only read when Pass is empty.
	CookiePath string

	// Wallet selects a wallet on a node with several loaded. Empty means
	// the default wallet.
	Wallet string

	// Timeout bounds a single request. Zero means no limit.
	Timeout time.Duration
}

// Client is a btcmultisig.Node backed by bitcoind. Every method is exactly
// one HTTP POST round trip: a request that fails in transit is reported,
// never sent again.
type Client struct {
	http *http.Client
	url  string
	cfg  Config

	nextID uint64
}

var _ btcmultisig.Node = (*Client)(nil)

// New returns a client for cfg. No connection is made until the first call.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, btcmultisig.NewError(btcmultisig.ValidationFailure, "",
			"no RPC host configured")
	}
	if cfg.Pass == "" && cfg.CookiePath == "" {
		return nil, btcmultisig.NewError(btcmultisig.AuthFailure, "",
			"no RPC password or cookie file configured")
	}

	url := "http://" + cfg.Host
	if cfg.Wallet != "" {
		url += "/wallet/" + cfg.Wallet
	}

	log.Debugf("RPC client for %s created", url)
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		url:  url,
		cfg:  cfg,
	}, nil
}

// Shutdown releases idle connections.
func (c *Client) Shutdown() {
	c.http.CloseIdleConnections()
}

// auth returns the basic auth credentials. The cookie file is read on every
// call since bitcoind rewrites it on each start.
func (c *Client) auth() (string, string, error) {
	if c.cfg.Pass != "" {
		return c.cfg.User, c.cfg.Pass, nil
	}

	cookie, err := os.ReadFile(c.cfg.CookiePath)
	if err != nil {
		return "", "", err
	}
	parts := strings.SplitN(strings.TrimSpace(string(cookie)), ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed cookie file %s",
			c.cfg.CookiePath)
	}
	return parts[0], parts[1], nil
}

// post sends one JSON-RPC request and returns the raw result. Replies that
// are not JSON-RPC come back as "status code: N, response: ..." errors.
func (c *Client) post(method string, params []json.RawMessage) (json.RawMessage, error) {
	user, pass, err := c.auth()
	if err != nil {
		return nil, btcmultisig.NewError(btcmultisig.AuthFailure, method,
			"cannot read RPC cookie: %v", err)
	}

	body, err := json.Marshal(&btcjson.Request{
		Jsonrpc: btcjson.RpcVersion1,
		Method:  method,
		Params:  params,
		ID:      atomic.AddUint64(&c.nextID, 1),
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.url,
		bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Close = true
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(user, pass)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading json reply: %v", err)
	}

	var resp btcjson.Response
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("status code: %d, response: %q",
			httpResp.StatusCode, string(respBytes))
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// call performs method with params and decodes the result into result, which
// may be nil. Params are never logged; several of them are secrets.
func (c *Client) call(method string, result interface{},
	params ...interface{}) error {

	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		raw, err := json.Marshal(p)
		if err != nil {
			return btcmultisig.NewError(btcmultisig.ValidationFailure,
				method, "cannot encode parameter: %v", err)
		}
		rawParams = append(rawParams, raw)
	}

	start := time.Now()
	resp, err := c.post(method, rawParams)
	if err != nil {
		log.Debugf("%s failed after %v: %v", method, time.Since(start),
			err)
		return btcmultisig.ClassifyRPCError(method, err)
	}
	log.Debugf("%s returned in %v", method, time.Since(start))

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp, result); err != nil {
		return btcmultisig.NewError(btcmultisig.TransportFailure, method,
			"malformed response: %v", err)
	}
	return nil
}

// amount marshals as a BTC value with exactly eight decimals, the form
// bitcoind parses without rounding.
type amount btcutil.Amount

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(btcutil.Amount(a).ToBTC(), 'f', 8, 64)), nil
}

func (a *amount) UnmarshalJSON(data []byte) error {
	var btc float64
	if err := json.Unmarshal(data, &btc); err != nil {
		return err
	}
	v, err := btcutil.NewAmount(btc)
	if err != nil {
		return err
	}
	*a = amount(v)
	return nil
}

func (c *Client) WalletPassphrase(passphrase string, timeout time.Duration) error {
	return c.call("walletpassphrase", nil, passphrase,
		int64(timeout/time.Second))
}

func (c *Client) GetNewAddress(label string,
	addrType btcmultisig.AddressType) (string, error) {

	var address string
	err := c.call("getnewaddress", &address, label, string(addrType))
	return address, err
}

func (c *Client) DumpPrivKey(address string) (string, error) {
	var wif string
	err := c.call("dumpprivkey", &wif, address)
	return wif, err
}

type validateAddressResult struct {
	IsValid      bool   `json:"isvalid"`
	Address      string `json:"address"`
	ScriptPubKey string `json:"scriptPubKey"`
	IsScript     bool   `json:"isscript"`
	IsWitness    bool   `json:"iswitness"`
}

func (c *Client) ValidateAddress(address string) (*btcmultisig.AddressValidation, error) {
	var res validateAddressResult
	if err := c.call("validateaddress", &res, address); err != nil {
		return nil, err
	}
	return &btcmultisig.AddressValidation{
		IsValid:      res.IsValid,
		Address:      res.Address,
		ScriptPubKey: res.ScriptPubKey,
		IsScript:     res.IsScript,
		IsWitness:    res.IsWitness,
	}, nil
}

type multisigResult struct {
	Address      string `json:"address"`
	RedeemScript string `json:"redeemScript"`
	Descriptor   string `json:"descriptor"`
}

func (r *multisigResult) convert(method string) (*btcmultisig.MultisigResult, error) {
	if r.Address == "" {
		return nil, btcmultisig.NewError(btcmultisig.TransportFailure,
			method, "response carries no address")
	}
	return &btcmultisig.MultisigResult{
		Address:      r.Address,
		RedeemScript: r.RedeemScript,
		Descriptor:   r.Descriptor,
	}, nil
}

func (c *Client) CreateMultisig(required int, pubKeys []string,
	addrType btcmultisig.AddressType) (*btcmultisig.MultisigResult, error) {

	var res multisigResult
	err := c.call("createmultisig", &res, required, pubKeys,
		string(addrType))
	if err != nil {
		return nil, err
	}
	return res.convert("createmultisig")
}

func (c *Client) AddMultisigAddress(required int, pubKeys []string,
	label string,
	addrType btcmultisig.AddressType) (*btcmultisig.MultisigResult, error) {

	var res multisigResult
	err := c.call("addmultisigaddress", &res, required, pubKeys, label,
		string(addrType))
	if err != nil {
		return nil, err
	}
	return res.convert("addmultisigaddress")
}

type unspentResult struct {
	TxID          string `json:"txid"`
	Vout          uint32 `json:"vout"`
	Address       string `json:"address"`
	Label         string `json:"label"`
	Amount        amount `json:"amount"`
	ScriptPubKey  string `json:"scriptPubKey"`
	RedeemScript  string `json:"redeemScript"`
	Confirmations int64  `json:"confirmations"`
	Spendable     bool   `json:"spendable"`
}

func (c *Client) ListUnspent() ([]btcmultisig.UTXO, error) {
	var res []unspentResult
	if err := c.call("listunspent", &res); err != nil {
		return nil, err
	}

	utxos := make([]btcmultisig.UTXO, 0, len(res))
	for _, u := range res {
		utxos = append(utxos, btcmultisig.UTXO{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Address:       u.Address,
			Label:         u.Label,
			Amount:        btcutil.Amount(u.Amount),
			ScriptPubKey:  u.ScriptPubKey,
			RedeemScript:  u.RedeemScript,
			Confirmations: u.Confirmations,
			Spendable:     u.Spendable,
		})
	}
	return utxos, nil
}

type outPoint struct {
	TxID string `json:"txid"`
	Vout uint32 `json:"vout"`
}

func (c *Client) CreateRawTransaction(inputs []btcmultisig.OutPoint,
	outputs []btcmultisig.Output) (string, error) {

	ins := make([]outPoint, 0, len(inputs))
	for _, in := range inputs {
		ins = append(ins, outPoint{TxID: in.TxID, Vout: in.Vout})
	}

	// bitcoind takes outputs as an address to amount object, so an
	// address can only be paid once.
	outs := make(map[string]amount, len(outputs))
	for _, out := range outputs {
		if _, ok := outs[out.Address]; ok {
			return "", btcmultisig.NewError(
				btcmultisig.ValidationFailure, "createrawtransaction",
				"duplicate output address %s", out.Address)
		}
		outs[out.Address] = amount(out.Amount)
	}

	var txHex string
	err := c.call("createrawtransaction", &txHex, ins, outs)
	return txHex, err
}

type prevTx struct {
	TxID         string `json:"txid"`
	Vout         uint32 `json:"vout"`
	ScriptPubKey string `json:"scriptPubKey"`
	RedeemScript string `json:"redeemScript,omitempty"`
	Amount       amount `json:"amount"`
}

type signResult struct {
	Hex      string `json:"hex"`
	Complete bool   `json:"complete"`
	Errors   []struct {
		TxID      string `json:"txid"`
		Vout      uint32 `json:"vout"`
		ScriptSig string `json:"scriptSig"`
		Sequence  uint32 `json:"sequence"`
		Error     string `json:"error"`
	} `json:"errors"`
}

func (c *Client) SignRawTransactionWithKey(txHex string, privKeys []string,
	prevOuts []btcmultisig.PrevOut) (*btcmultisig.SignResult, error) {

	prevTxs := make([]prevTx, 0, len(prevOuts))
	for _, p := range prevOuts {
		prevTxs = append(prevTxs, prevTx{
			TxID:         p.TxID,
			Vout:         p.Vout,
			ScriptPubKey: p.ScriptPubKey,
			RedeemScript: p.RedeemScript,
			Amount:       amount(p.Amount),
		})
	}

	var res signResult
	err := c.call("signrawtransactionwithkey", &res, txHex, privKeys,
		prevTxs)
	if err != nil {
		return nil, err
	}
	if res.Hex == "" {
		return nil, btcmultisig.NewError(btcmultisig.TransportFailure,
			"signrawtransactionwithkey", "response carries no hex")
	}

	out := &btcmultisig.SignResult{Hex: res.Hex, Complete: res.Complete}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, btcmultisig.SignError{
			TxID:      e.TxID,
			Vout:      e.Vout,
			ScriptSig: e.ScriptSig,
			Sequence:  e.Sequence,
			Error:     e.Error,
		})
	}
	return out, nil
}

func (c *Client) SendRawTransaction(txHex string) (string, error) {
	var txid string
	err := c.call("sendrawtransaction", &txid, txHex)
	return txid, err
}
