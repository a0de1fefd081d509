package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

func main() {
	subCmd, cfg, cmds, err := loadConfig(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage())
		os.Exit(1)
	}

	if err := initLogging(cfg); err != nil {
		if errors.Is(err, errShowSubsystems) {
			os.Exit(0)
		}
		printErrorAndExit(err)
	}

	switch subCmd {
	case genKeysSubCmd:
		err = genKeys(cfg, &cmds.genKeys)
	case spendSubCmd:
		err = spend(cfg, &cmds.spend)
	case deriveSubCmd:
		err = derive(cfg, &cmds.derive)
	case multisigSubCmd:
		err = multisig(cfg, &cmds.multisig)
	default:
		err = errors.Errorf("Unknown sub-command '%s'", subCmd)
	}

	closeLogRotator()
	if err != nil {
		printErrorAndExit(err)
	}
}

func printErrorAndExit(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}
