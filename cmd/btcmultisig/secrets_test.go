package main

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func fakeEnv(vars map[string]string) envStore {
	return envStore{lookup: func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}}
}

func TestSecretStoreOrder(t *testing.T) {
	prompted := 0
	prompt := promptStore{readPassword: func(string) ([]byte, error) {
		prompted++
		return []byte("typed"), nil
	}}

	store := chainStore{
		staticStore{"rpcpass": "flag", "walletpassphrase": ""},
		fakeEnv(map[string]string{
			"BTCMULTISIG_RPCPASS":          "env",
			"BTCMULTISIG_WALLETPASSPHRASE": "env-pass",
		}),
		prompt,
	}

	v, err := store.Secret("rpcpass")
	require.NoError(t, err)
	require.Equal(t, "flag", v)

	// An empty flag value falls through to the environment.
	v, err = store.Secret("walletpassphrase")
	require.NoError(t, err)
	require.Equal(t, "env-pass", v)

	v, err = store.Secret("privkey1")
	require.NoError(t, err)
	require.Equal(t, "typed", v)
	require.Equal(t, 1, prompted)
}

func TestSecretStoreNotFound(t *testing.T) {
	store := chainStore{
		staticStore{},
		fakeEnv(map[string]string{"BTCMULTISIG_PRIVKEY1": ""}),
		promptStore{readPassword: func(string) ([]byte, error) {
			return nil, nil
		}},
	}

	_, err := store.Secret("privkey1")
	require.True(t, errors.Is(err, errSecretNotFound))
	require.Contains(t, err.Error(), "BTCMULTISIG_PRIVKEY1")

	v, err := optionalSecret(store, "privkey1")
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestSecretStorePromptError(t *testing.T) {
	boom := errors.New("not a terminal")
	store := chainStore{
		staticStore{},
		promptStore{readPassword: func(string) ([]byte, error) {
			return nil, boom
		}},
	}

	_, err := optionalSecret(store, "rpcpass")
	require.Equal(t, boom, err)
}
