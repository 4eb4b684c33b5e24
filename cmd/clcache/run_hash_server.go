package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/clcache-go/clcache/internal/canon"
	"github.com/clcache-go/clcache/internal/cmd"
	"github.com/clcache-go/clcache/internal/config"
	"github.com/clcache-go/clcache/internal/hashserver"
	"github.com/clcache-go/clcache/internal/ipc"
	"github.com/clcache-go/clcache/internal/logging"
)

var runHashServerConfiguration struct {
	daemonDir string
}

// runHashServerMain runs the Hash Server daemon in the foreground, per spec
// §4.4. It is both how the on-demand singleton is actually spawned
// (hashserver.Client's spawnDetached re-execs the current binary with this
// exact subcommand) and, per the supplemented foreground-diagnosability
// feature in SPEC_FULL.md §12, directly runnable by an operator for
// debugging pipe issues — there is no separate "detached" vs "foreground"
// code path, only whether the parent process backgrounds this one.
func runHashServerMain(command *cobra.Command, arguments []string) error {
	env, err := config.NewEnvironmentFromOS()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(env.LogLevel)

	daemonDir := runHashServerConfiguration.daemonDir
	if daemonDir == "" {
		daemonDir = hashserver.DaemonDir(env.Root)
	}
	if err := os.MkdirAll(daemonDir, 0700); err != nil {
		return err
	}

	endpointPath := hashserver.EndpointPath(daemonDir)
	os.Remove(endpointPath)

	listener, err := ipc.NewListener(endpointPath)
	if err != nil {
		return err
	}
	defer listener.Close()
	defer os.Remove(endpointPath)

	idleTimeout := env.ServerTimeout

	canonEnv := canon.New(env.BaseDir, env.BuildDir)
	server := hashserver.New(canonEnv, idleTimeout, logger)

	if err := hashserver.MarkReady(daemonDir); err != nil {
		return err
	}
	defer hashserver.ClearReady(daemonDir)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger.Infof("hash server listening at %s (idle timeout %s)", endpointPath, idleTimeout)
	return server.Serve(ctx, listener)
}

var runHashServerCommand = &cobra.Command{
	Use:   "run-hash-server",
	Short: "Run the file-hashing daemon in the foreground",
	Run:   cmd.Mainify(runHashServerMain),
}

func init() {
	flags := runHashServerCommand.Flags()
	flags.StringVar(&runHashServerConfiguration.daemonDir, "daemon-dir", "", "Directory holding the daemon's IPC endpoint (defaults to the cache root's daemon subdirectory)")
}
