// Command macroapi serves the train reservation macro API.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bbang93/macro-api/cmd/internal/app"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "macroapi: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		flags   app.Flags
		envFile string
	)

	set := pflag.NewFlagSet("macroapi", pflag.ContinueOnError)
	set.StringVar(&flags.Addr, "addr", "", "listen address (overrides MACRO_HTTP_ADDR)")
	set.StringVar(&flags.LogLevel, "log-level", "", "debug|info|warn|error (overrides MACRO_LOG_LEVEL)")
	set.StringVar(&flags.LogFormat, "log-format", "", "json|pretty (overrides MACRO_LOG_FORMAT)")
	set.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	if err := set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if extra := set.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}

	if err := loadEnvFile(envFile); err != nil {
		return err
	}
	return app.Run(flags)
}

// loadEnvFile never overrides variables already set in the process
// environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
