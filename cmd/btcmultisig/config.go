package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"

	btcmultisig "github.com/pablonlr/btc-rpc-multisig"
)

const (
	genKeysSubCmd  = "genkeys"
	spendSubCmd    = "spend"
	deriveSubCmd   = "derive"
	multisigSubCmd = "multisig"

	defaultConfigFilename = "btcmultisig.conf"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "btcmultisig.log"
	defaultLogLevel       = "info"
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10
	defaultNetwork        = "testnet3"
	defaultRPCHost        = "127.0.0.1"
	defaultRPCTimeout     = time.Minute
	defaultUnlockTimeout  = 100 * time.Second
)

var (
	defaultAppDir     = btcutil.AppDataDir("btcmultisig", false)
	defaultConfigFile = filepath.Join(defaultAppDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultAppDir, defaultLogDirname)
)

// config holds the options shared by every sub-command.
type config struct {
	ConfigFile     string        `short:"C" long:"configfile" description:"Path to configuration file"`
	Network        string        `long:"network" description:"Bitcoin network {mainnet, testnet3, regtest, signet}"`
	RPCConnect     string        `long:"rpcconnect" description:"Host of the Bitcoin Core RPC server"`
	RPCPort        string        `long:"rpcport" description:"Port of the RPC server, defaults to the network's"`
	RPCUser        string        `short:"u" long:"rpcuser" description:"Username for RPC connections"`
	RPCPass        string        `short:"P" long:"rpcpass" default-mask:"-" description:"Password for RPC connections"`
	RPCCookie      string        `long:"rpccookie" description:"Authentication cookie file for RPC connections, used when no password is set"`
	RPCTimeout     time.Duration `long:"rpctimeout" description:"Time limit for a single RPC request (0 for none)"`
	Wallet         string        `short:"w" long:"wallet" description:"Name of the wallet to use on a multi-wallet node"`
	LogDir         string        `long:"logdir" description:"Directory to log output, empty to log to the console only"`
	DebugLevel     string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	MaxLogFiles    int           `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int           `long:"maxlogfilesize" description:"Maximum logfile size in MB"`

	net *btcmultisig.Network
}

// UnlockOptions are shared by the sub-commands that touch wallet keys.
type UnlockOptions struct {
	WalletPassphrase string        `long:"walletpassphrase" default-mask:"-" description:"Passphrase to unlock an encrypted wallet"`
	AskPass          bool          `long:"askpass" description:"Prompt for the wallet passphrase if none is configured"`
	UnlockTimeout    time.Duration `long:"unlocktimeout" description:"How long the wallet stays unlocked"`
}

type genKeysConfig struct {
	Count       int    `short:"n" long:"count" description:"Number of address/key pairs to generate"`
	Label       string `long:"label" description:"Label for the new addresses"`
	AddressType string `long:"addresstype" description:"Address type {legacy, p2sh-segwit, bech32}"`
	UnlockOptions

	addrType btcmultisig.AddressType
}

type spendConfig struct {
	PrivKeys    []string `short:"k" long:"privkey" default-mask:"-" description:"Private key of a multisig participant, WIF or hex, in redeem script order (specify 3 times)"`
	Destination string   `long:"dest" description:"Address to send to" required:"true"`
	Amount      string   `long:"amount" description:"Amount to send in BTC (e.g. 0.000001)" required:"true"`
	Label       string   `long:"label" description:"Label for the multisig address"`
	AddressType string   `long:"addresstype" description:"Multisig address type {legacy, p2sh-segwit, bech32}"`
	UnlockOptions

	addrType btcmultisig.AddressType
	amount   btcutil.Amount
}

type deriveConfig struct {
	PrivKeys []string `short:"k" long:"privkey" default-mask:"-" description:"Private key, WIF or hex" required:"true"`
	Validate bool     `long:"validate" description:"Cross-check each derived address with the node"`
}

type multisigConfig struct {
	PubKeys  []string `short:"p" long:"pubkey" description:"Public key of a participant, in order" required:"true"`
	Required int      `short:"m" long:"required" description:"Minimum required signatures"`
}

// commandConfigs bundles the per-command option groups.
type commandConfigs struct {
	genKeys  genKeysConfig
	spend    spendConfig
	derive   deriveConfig
	multisig multisigConfig
}

func defaultConfig() config {
	return config{
		ConfigFile:     defaultConfigFile,
		Network:        defaultNetwork,
		RPCConnect:     defaultRPCHost,
		RPCTimeout:     defaultRPCTimeout,
		LogDir:         defaultLogDir,
		DebugLevel:     defaultLogLevel,
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileSize,
	}
}

func defaultCommandConfigs() *commandConfigs {
	unlock := UnlockOptions{UnlockTimeout: defaultUnlockTimeout}
	return &commandConfigs{
		genKeys: genKeysConfig{
			Count:         3,
			AddressType:   string(btcmultisig.AddressLegacy),
			UnlockOptions: unlock,
		},
		spend: spendConfig{
			AddressType:   string(btcmultisig.AddressLegacy),
			UnlockOptions: unlock,
		},
		multisig: multisigConfig{
			Required: btcmultisig.MultisigThreshold,
		},
	}
}

func newConfigParser(cfg *config, cmds *commandConfigs,
	options flags.Options) *flags.Parser {

	parser := flags.NewParser(cfg, options)
	parser.AddCommand(genKeysSubCmd, "Generate address/key pairs",
		"Asks the wallet for new addresses and prints each with its "+
			"private key, public key and locking script", &cmds.genKeys)
	parser.AddCommand(spendSubCmd, "Spend from a 2-of-3 multisig address",
		"Builds the 2-of-3 multisig address of three private keys, "+
			"spends its first unspent output to a destination and "+
			"broadcasts the result", &cmds.spend)
	parser.AddCommand(deriveSubCmd, "Derive public keys and addresses",
		"Derives the public key and P2PKH address of private keys "+
			"without contacting the node unless --validate is given",
		&cmds.derive)
	parser.AddCommand(multisigSubCmd, "Compute a multisig address offline",
		"Computes the P2SH multisig address and redeem script of "+
			"public keys without contacting the node", &cmds.multisig)
	return parser
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// It returns the active sub-command and its options.
func loadConfig(args []string) (string, *config, *commandConfigs, error) {
	// Pre-parse the command line options to see if an alternative config
	// file was specified. Errors, including the help request, are caught
	// by the final parse below, which also knows the sub-commands.
	preCfg := defaultConfig()
	preParser := flags.NewParser(&preCfg, flags.IgnoreUnknown)
	_, _ = preParser.ParseArgs(args)

	cfg := defaultConfig()
	cmds := defaultCommandConfigs()
	parser := newConfigParser(&cfg, cmds, flags.HelpFlag)

	if err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) || preCfg.ConfigFile != defaultConfigFile {
			return "", nil, nil, errors.Wrapf(err, "error parsing "+
				"config file %s", preCfg.ConfigFile)
		}
	}

	// Parse command line options again to ensure they take precedence.
	if _, err := parser.ParseArgs(args); err != nil {
		return "", nil, nil, err
	}

	if err := cfg.validate(); err != nil {
		return "", nil, nil, err
	}

	var err error
	subCmd := parser.Active.Name
	switch subCmd {
	case genKeysSubCmd:
		err = cmds.genKeys.validate()
	case spendSubCmd:
		err = cmds.spend.validate()
	case multisigSubCmd:
		err = cmds.multisig.validate()
	}
	if err != nil {
		return "", nil, nil, err
	}

	return subCmd, &cfg, cmds, nil
}

func (cfg *config) validate() error {
	network, err := btcmultisig.NetworkByName(cfg.Network)
	if err != nil {
		return err
	}
	cfg.net = network

	if cfg.RPCPort == "" {
		cfg.RPCPort = network.RPCPort
	}
	if _, err := strconv.ParseUint(cfg.RPCPort, 10, 16); err != nil {
		return errors.Errorf("invalid RPC port %q", cfg.RPCPort)
	}
	if cfg.RPCTimeout < 0 {
		return errors.New("rpctimeout cannot be negative")
	}
	if cfg.RPCCookie != "" {
		cfg.RPCCookie = filepath.Clean(cfg.RPCCookie)
	}
	if cfg.MaxLogFiles < 0 || cfg.MaxLogFileSize < 0 {
		return errors.New("log file limits cannot be negative")
	}
	return nil
}

// rpcHost returns host:port of the node.
func (cfg *config) rpcHost() string {
	return net.JoinHostPort(cfg.RPCConnect, cfg.RPCPort)
}

func (c *genKeysConfig) validate() error {
	if c.Count < 0 {
		return errors.Errorf("count must not be negative, got %d", c.Count)
	}
	addrType, err := btcmultisig.ParseAddressType(c.AddressType)
	if err != nil {
		return err
	}
	c.addrType = addrType
	return nil
}

func (c *spendConfig) validate() error {
	if n := len(c.PrivKeys); n != 0 && n != btcmultisig.MultisigKeys {
		return errors.Errorf("expected %d private keys, got %d",
			btcmultisig.MultisigKeys, n)
	}
	addrType, err := btcmultisig.ParseAddressType(c.AddressType)
	if err != nil {
		return err
	}
	c.addrType = addrType

	c.amount, err = parseAmount(c.Amount)
	return err
}

func (c *multisigConfig) validate() error {
	if c.Required <= 0 || c.Required > len(c.PubKeys) {
		return errors.Errorf("required signatures must be between 1 and "+
			"%d, got %d", len(c.PubKeys), c.Required)
	}
	return nil
}

// amountFormat matches an integer, or a decimal with at most 8 fractional
// digits.
var amountFormat = regexp.MustCompile(`^([1-9]\d{0,7}|0)(\.\d{0,8})?$`)

// parseAmount converts a positive BTC decimal string to satoshis.
func parseAmount(s string) (btcutil.Amount, error) {
	if !amountFormat.MatchString(s) {
		return 0, errors.Errorf("invalid amount %q", s)
	}
	btc, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid amount %q", s)
	}
	amount, err := btcutil.NewAmount(btc)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid amount %q", s)
	}
	if amount <= 0 || amount > btcutil.MaxSatoshi {
		return 0, errors.Errorf("amount %s is out of range", s)
	}
	return amount, nil
}

func usageMessage() string {
	appName := filepath.Base(os.Args[0])
	return fmt.Sprintf("Use %s -h to show usage", appName)
}
