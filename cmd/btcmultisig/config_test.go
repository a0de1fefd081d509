package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"

	btcmultisig "github.com/pablonlr/btc-rpc-multisig"
)

// writeConfigFile writes contents to a fresh config file and returns the
// arguments selecting it.
func writeConfigFile(t *testing.T, contents string) []string {
	t.Helper()

	path := filepath.Join(t.TempDir(), defaultConfigFilename)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return []string{"--configfile", path}
}

func TestLoadConfigDefaults(t *testing.T) {
	args := append(writeConfigFile(t, ""), genKeysSubCmd)

	subCmd, cfg, cmds, err := loadConfig(args)
	require.NoError(t, err)
	require.Equal(t, genKeysSubCmd, subCmd)
	require.Equal(t, btcmultisig.BTC_TESNET, cfg.net)
	require.Equal(t, "127.0.0.1:18332", cfg.rpcHost())
	require.Equal(t, defaultLogLevel, cfg.DebugLevel)
	require.Equal(t, defaultRPCTimeout, cfg.RPCTimeout)
	require.Empty(t, cfg.RPCCookie)

	require.Equal(t, 3, cmds.genKeys.Count)
	require.Equal(t, btcmultisig.AddressLegacy, cmds.genKeys.addrType)
	require.Equal(t, defaultUnlockTimeout, cmds.genKeys.UnlockTimeout)
}

func TestLoadConfigFileAndOverrides(t *testing.T) {
	args := writeConfigFile(t, `
[Application Options]
network = regtest
rpcuser = alice
wallet = walletL

[genkeys]
count = 5
addresstype = bech32
`)

	_, cfg, cmds, err := loadConfig(append(args, genKeysSubCmd))
	require.NoError(t, err)
	require.Equal(t, btcmultisig.BTC_REGTEST, cfg.net)
	require.Equal(t, "127.0.0.1:18443", cfg.rpcHost())
	require.Equal(t, "alice", cfg.RPCUser)
	require.Equal(t, "walletL", cfg.Wallet)
	require.Equal(t, 5, cmds.genKeys.Count)
	require.Equal(t, btcmultisig.AddressBech32, cmds.genKeys.addrType)

	// The command line wins over the file.
	_, cfg, cmds, err = loadConfig(append(args,
		"--network", "signet", "--rpcport", "1234",
		genKeysSubCmd, "--count", "2", "--unlocktimeout", "30s",
	))
	require.NoError(t, err)
	require.Equal(t, btcmultisig.BTC_SIGNET, cfg.net)
	require.Equal(t, "127.0.0.1:1234", cfg.rpcHost())
	require.Equal(t, 2, cmds.genKeys.Count)
	require.Equal(t, 30*time.Second, cmds.genKeys.UnlockTimeout)
}

func TestLoadConfigSpend(t *testing.T) {
	args := append(writeConfigFile(t, ""), spendSubCmd,
		"-k", "key1", "-k", "key2", "-k", "key3",
		"--dest", "mxVFsFW5N4mu1HPkxPttorvocvzeZ7KZyk",
		"--amount", "0.000001",
	)

	subCmd, _, cmds, err := loadConfig(args)
	require.NoError(t, err)
	require.Equal(t, spendSubCmd, subCmd)
	require.Equal(t, []string{"key1", "key2", "key3"}, cmds.spend.PrivKeys)
	require.Equal(t, btcutil.Amount(100), cmds.spend.amount)
	require.Equal(t, btcmultisig.AddressLegacy, cmds.spend.addrType)

	keys, err := spendKeys(&cmds.spend)
	require.NoError(t, err)
	require.Equal(t, [btcmultisig.MultisigKeys]string{
		"key1", "key2", "key3",
	}, keys)
}

func TestLoadConfigErrors(t *testing.T) {
	base := writeConfigFile(t, "")
	spendArgs := func(extra ...string) []string {
		args := append([]string{}, base...)
		args = append(args, spendSubCmd,
			"--dest", "mxVFsFW5N4mu1HPkxPttorvocvzeZ7KZyk")
		return append(args, extra...)
	}

	testCases := []struct {
		name string
		args []string
	}{
		{
			name: "no command",
			args: base,
		},
		{
			name: "unknown network",
			args: append(append([]string{}, base...), "--network",
				"simnet", deriveSubCmd, "-k", "x"),
		},
		{
			name: "bad port",
			args: append(append([]string{}, base...), "--rpcport",
				"70000", deriveSubCmd, "-k", "x"),
		},
		{
			name: "two keys",
			args: spendArgs("--amount", "1", "-k", "a", "-k", "b"),
		},
		{
			name: "missing amount",
			args: spendArgs(),
		},
		{
			name: "bad amount",
			args: spendArgs("--amount", "1.123456789"),
		},
		{
			name: "bad address type",
			args: spendArgs("--amount", "1", "--addresstype", "taproot"),
		},
		{
			name: "negative count",
			args: append(append([]string{}, base...), genKeysSubCmd,
				"--count", "-1"),
		},
		{
			name: "threshold above keys",
			args: append(append([]string{}, base...), multisigSubCmd,
				"-p", "02aa", "-p", "02bb", "-m", "3"),
		},
		{
			name: "missing config file",
			args: []string{"--configfile", filepath.Join(t.TempDir(),
				"nope.conf"), deriveSubCmd, "-k", "x"},
		},
	}

	for _, tc := range testCases {
		_, _, _, err := loadConfig(tc.args)
		require.Error(t, err, tc.name)
	}
}

func TestParseAmount(t *testing.T) {
	valid := map[string]btcutil.Amount{
		"1":          btcutil.SatoshiPerBitcoin,
		"1.0":        btcutil.SatoshiPerBitcoin,
		"0.00008":    8000,
		"0.000001":   100,
		"0.00000001": 1,
		"21000000":   btcutil.MaxSatoshi,
	}
	for s, want := range valid {
		got, err := parseAmount(s)
		require.NoError(t, err, s)
		require.Equal(t, want, got, s)
	}

	for _, s := range []string{"", "0", "0.0", "-1", "1e-6", ".5",
		"0.000000001", "abc", "01", "21000001"} {

		_, err := parseAmount(s)
		require.Error(t, err, s)
	}
}

func TestLoadConfigRPCCookie(t *testing.T) {
	cookie := filepath.Join(t.TempDir(), ".cookie")
	args := append(writeConfigFile(t, ""),
		"--rpccookie", cookie, "--rpctimeout", "5s", deriveSubCmd,
		"-k", "x")

	_, cfg, _, err := loadConfig(args)
	require.NoError(t, err)
	require.Equal(t, cookie, cfg.RPCCookie)
	require.Equal(t, 5*time.Second, cfg.RPCTimeout)

	// No password anywhere: the cookie is used and nothing prompts.
	t.Setenv(envName("rpcpass"), "")
	node, err := connectToNode(cfg)
	require.NoError(t, err)
	node.Shutdown()

	_, _, _, err = loadConfig(append(writeConfigFile(t, ""),
		"--rpctimeout=-1s", deriveSubCmd, "-k", "x"))
	require.Error(t, err)
}
