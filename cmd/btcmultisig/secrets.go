package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// envPrefix prefixes the environment variables secrets are read from, e.g.
// BTCMULTISIG_RPCPASS.
const envPrefix = "BTCMULTISIG_"

// errSecretNotFound is returned by a SecretStore that does not hold the
// requested secret.
var errSecretNotFound = errors.New("secret not found")

// SecretStore looks up secrets such as the RPC password, the wallet
// passphrase and private keys by name.
type SecretStore interface {
	Secret(name string) (string, error)
}

// staticStore serves secrets given on the command line or in the config
// file. Empty values count as absent.
type staticStore map[string]string

func (s staticStore) Secret(name string) (string, error) {
	if v := s[name]; v != "" {
		return v, nil
	}
	return "", errSecretNotFound
}

// envStore serves secrets from environment variables.
type envStore struct {
	lookup func(string) (string, bool)
}

func newEnvStore() envStore {
	return envStore{lookup: os.LookupEnv}
}

func envName(name string) string {
	return envPrefix + strings.ToUpper(name)
}

func (s envStore) Secret(name string) (string, error) {
	if v, ok := s.lookup(envName(name)); ok && v != "" {
		return v, nil
	}
	return "", errSecretNotFound
}

// promptStore asks for secrets on the terminal without echo.
type promptStore struct {
	readPassword func(prompt string) ([]byte, error)
}

func newPromptStore() promptStore {
	return promptStore{readPassword: readPassword}
}

func (s promptStore) Secret(name string) (string, error) {
	p, err := s.readPassword(fmt.Sprintf("Enter %s: ", name))
	if err != nil {
		return "", err
	}
	if len(p) == 0 {
		return "", errSecretNotFound
	}
	return string(p), nil
}

// chainStore consults its stores in order and returns the first hit.
type chainStore []SecretStore

func (s chainStore) Secret(name string) (string, error) {
	for _, store := range s {
		v, err := store.Secret(name)
		if errors.Is(err, errSecretNotFound) {
			continue
		}
		return v, err
	}
	return "", errors.Wrapf(errSecretNotFound, "no value for %s, set "+
		"it in the config file or %s", name, envName(name))
}

// newSecretStore returns the store chain: values from flags and the config
// file, then the environment, then, if stdin is a terminal and prompt is
// set, an interactive prompt.
func newSecretStore(values map[string]string, prompt bool) SecretStore {
	stores := chainStore{staticStore(values), newEnvStore()}
	if prompt && term.IsTerminal(int(syscall.Stdin)) {
		stores = append(stores, newPromptStore())
	}
	return stores
}

// optionalSecret is Secret with errSecretNotFound mapped to "".
func optionalSecret(store SecretStore, name string) (string, error) {
	v, err := store.Secret(name)
	if errors.Is(err, errSecretNotFound) {
		return "", nil
	}
	return v, err
}

// readPassword prompts on stdout and reads a line from the terminal with
// echo disabled. The terminal state is restored on interrupt.
func readPassword(prompt string) ([]byte, error) {
	fd := int(syscall.Stdin)
	initialTermState, err := term.GetState(fd)
	if err != nil {
		return nil, err
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-c:
			_ = term.Restore(fd, initialTermState)
			os.Exit(1)
		case <-done:
		}
	}()
	defer signal.Stop(c)

	fmt.Print(prompt)
	p, err := term.ReadPassword(fd)
	fmt.Println()
	return p, err
}
