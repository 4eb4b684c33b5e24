package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/clcache-go/clcache/internal/cmd"
	"github.com/clcache-go/clcache/internal/config"
	"github.com/clcache-go/clcache/internal/logging"
)

func setMaxSizeBytesMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("set-max-size-bytes requires exactly one argument")
	}
	bytes, err := strconv.ParseInt(arguments[0], 10, 64)
	if err != nil {
		return errors.Wrap(err, "unable to parse byte count")
	}
	return setMaxSize(bytes)
}

func setMaxSizeGBMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 1 {
		return errors.New("set-max-size-gb requires exactly one argument")
	}
	bytes, err := config.ParseSize(arguments[0])
	if err != nil {
		return err
	}
	return setMaxSize(bytes)
}

func setMaxSize(bytes int64) error {
	env, err := config.NewEnvironmentFromOS()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(env.LogLevel)

	if err := config.SetMaxCacheSize(env.Root, bytes, logger); err != nil {
		return err
	}
	fmt.Printf("Maximum cache size set to %s.\n", config.FormatSize(bytes))
	return nil
}

var setMaxSizeBytesCommand = &cobra.Command{
	Use:   "set-max-size-bytes <bytes>",
	Short: "Set the maximum cache size in bytes",
	Run:   cmd.Mainify(setMaxSizeBytesMain),
}

var setMaxSizeGBCommand = &cobra.Command{
	Use:   "set-max-size-gb <size>",
	Short: "Set the maximum cache size, accepting human-readable sizes like \"5GB\"",
	Run:   cmd.Mainify(setMaxSizeGBMain),
}
