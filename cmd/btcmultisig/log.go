package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"

	btcmultisig "github.com/pablonlr/btc-rpc-multisig"
	"github.com/pablonlr/btc-rpc-multisig/bitcoind"
)

// logWriter implements an io.Writer that outputs to both stderr and the
// write-end pipe of an initialized log rotator. Command results go to
// stdout, so logs stay off it.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stderr.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

// Loggers per subsystem.  A single backend logger is created and all subsystem
// loggers created from it will write to the backend.  When adding new
// subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
var (
	// backendLog is the logging backend used to create all subsystem
	// loggers.
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	log     = backendLog.Logger("CMD")
	msigLog = backendLog.Logger(btcmultisig.Subsystem)
	btcdLog = backendLog.Logger(bitcoind.Subsystem)
)

// Initialize package-global logger variables.
func init() {
	btcmultisig.UseLogger(msigLog)
	bitcoind.UseLogger(btcdLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	"CMD":                 log,
	btcmultisig.Subsystem: msigLog,
	bitcoind.Subsystem:    btcdLog,
}

// initLogRotator initializes the logging rotator to write logs to logFile and
// create roll files in the same directory.  It must be called before the
// package-global log rotator variables are used.
func initLogRotator(logFile string, maxLogFileSize, maxLogFiles int) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return errors.Wrap(err, "failed to create log directory")
	}
	r, err := rotator.New(logFile, int64(maxLogFileSize*1024), false,
		maxLogFiles)
	if err != nil {
		return errors.Wrap(err, "failed to create file rotator")
	}

	logRotator = r
	return nil
}

// closeLogRotator flushes and closes the log file, if any.
func closeLogRotator() {
	if logRotator != nil {
		logRotator.Close()
	}
}

// setLogLevel sets the logging level for provided subsystem.  Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.
func setLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical", "off":
		return true
	}
	return false
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return errors.Errorf("the specified debug level [%v] is "+
				"invalid", debugLevel)
		}

		setLogLevels(debugLevel)
		return nil
	}

	// Split the specified string into subsystem/level pairs while
	// detecting issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		fields := strings.Split(logLevelPair, "=")
		if len(fields) != 2 {
			return errors.Errorf("the specified debug level has an "+
				"invalid format [%v] -- use format subsystem1=level1,"+
				"subsystem2=level2", logLevelPair)
		}
		subsysID, logLevel := fields[0], fields[1]

		if _, exists := subsystemLoggers[subsysID]; !exists {
			return errors.Errorf("the specified subsystem [%v] is "+
				"invalid -- supported subsystems %v", subsysID,
				supportedSubsystems())
		}
		if !validLogLevel(logLevel) {
			return errors.Errorf("the specified debug level [%v] is "+
				"invalid", logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// initLogging applies the log options of cfg. "show" lists the subsystems
// and returns errShowSubsystems.
func initLogging(cfg *config) error {
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		return errShowSubsystems
	}
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return err
	}
	if cfg.LogDir == "" {
		return nil
	}
	return initLogRotator(
		filepath.Join(cfg.LogDir, cfg.net.Name, defaultLogFilename),
		cfg.MaxLogFileSize, cfg.MaxLogFiles,
	)
}

var errShowSubsystems = errors.New("subsystems listed")
