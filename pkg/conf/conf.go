// conf is a helper for simsift configuration for both command line interface
// and environment variables.
// It gives ability to register arguments which will be fetched from
// CLI input OR environment variable.
// By default it registers the log level option.
//
// When `ParseEnv` is executed, only the environment arguments are parsed and
// ready to be used in the flag values. `ParseEnv` can be run multiple times.
//
// When `ParseFlags` is executed, the arguments from both CLI and Env are
// parsed. In case of --help option it prints help.
package conf

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	app = kingpin.New("simsift", "Simulation result analysis")
	// Default flags and values.
	logLevelFlag = NewStringFlag(
		"log",
		"Log level for simsift: debug, info, warn, error, fatal, panic",
		"error",
	)
	isEnvParsed = false
)

// SetHelp sets the help message for the CLI.
func SetHelp(help string) {
	app.Help = help
}

// SetAppName sets application name for CLI output.
func SetAppName(name string) {
	app.Name = name
}

// AppName returns specified app name.
func AppName() string {
	return app.Name
}

// LogLevel returns configured logLevel from input option or env variable.
// If it cannot parse the configured level, it returns the default value.
func LogLevel() log.Level {
	level, err := log.ParseLevel(logLevelFlag.Value())
	if err == nil {
		return level
	}

	level, err = log.ParseLevel(logLevelFlag.defaultValue)
	if err == nil {
		return level
	}

	// Programmer error.
	panic(errors.Wrap(err, "parsing log level failed"))
}

// ParseFlags parse both the command line flags of the process and
// environment variables.
func ParseFlags() error {
	_, err := app.Parse(os.Args[1:])
	if err == nil {
		isEnvParsed = true
		return nil
	}

	return errors.Wrapf(err, "could not parse command line flags")
}

// ParseEnv parse the environment for arguments.
func ParseEnv() error {
	_, err := app.Parse([]string{})
	if err == nil {
		isEnvParsed = true
		return nil
	}

	return errors.Wrapf(err, "could not parse environment flags")
}

// DumpConfig dumps environment based configuration with current values of
// flags. Includes "allexport" directives for bash.
func DumpConfig() string {
	buffer := &bytes.Buffer{}

	buffer.WriteString("# Exported values.\n")
	buffer.WriteString("set -o allexport\n")

	for _, name := range registeredNames() {
		flag := definedFlags[name]
		definition := flag.definition()

		fmt.Fprintf(buffer, "\n# %s\n", definition.help)
		if definition.defaultValue != "" {
			fmt.Fprintf(buffer, "# Default: %s\n", definition.defaultValue)
		}
		fmt.Fprintf(buffer, "%s=%s\n", flag.envName(), definition.value)
	}

	buffer.WriteString("set +o allexport")
	return buffer.String()
}

// GetFlags returns flags as map with current values.
func GetFlags() map[string]string {
	flagsMap := map[string]string{}
	for _, name := range registeredNames() {
		flagsMap[name] = definedFlags[name].definition().value
	}
	return flagsMap
}

// registeredNames returns flag names in deterministic dump order.
func registeredNames() []string {
	names := make([]string, 0, len(definedFlags))
	for name := range definedFlags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
