package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clcache-go/clcache/internal/artifactstore"
	"github.com/clcache-go/clcache/internal/cachedir"
	"github.com/clcache-go/clcache/internal/cmd"
	"github.com/clcache-go/clcache/internal/config"
	"github.com/clcache-go/clcache/internal/eviction"
	"github.com/clcache-go/clcache/internal/logging"
	"github.com/clcache-go/clcache/internal/manifeststore"
	"github.com/clcache-go/clcache/internal/stats"
)

// runCleanup implements both `clean` (target = configured max size) and
// `clear` (target = 0, per spec §4.10: "clear is clean with max-size = 0").
func runCleanup(maxSize int64) error {
	env, err := config.NewEnvironmentFromOS()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(env.LogLevel)

	manifestsDir, err := cachedir.Ensure(env.Root, cachedir.ManifestsDirectoryName)
	if err != nil {
		return err
	}
	objectsDir, err := cachedir.Ensure(env.Root, cachedir.ObjectsDirectoryName)
	if err != nil {
		return err
	}

	manifests := manifeststore.New(manifestsDir, logger)
	artifacts := artifactstore.New(objectsDir, logger)

	result, err := eviction.Run(context.Background(), env.Root, maxSize, manifests, artifacts, logger)
	if err != nil {
		return err
	}

	if err := stats.Store(env.Root, logger).Save(eviction.CountersAfter(result)); err != nil {
		return err
	}

	fmt.Printf("Retained %d artifacts (%s), %s of manifests.\n",
		result.RetainedArtifactCount,
		config.FormatSize(result.RetainedArtifactBytes),
		config.FormatSize(result.RetainedManifestBytes),
	)
	return nil
}

func cleanMain(command *cobra.Command, arguments []string) error {
	env, err := config.NewEnvironmentFromOS()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(env.LogLevel)
	maxSize, err := config.LoadMaxCacheSize(env.Root, logger)
	if err != nil {
		return err
	}
	return runCleanup(maxSize)
}

func clearMain(command *cobra.Command, arguments []string) error {
	return runCleanup(0)
}

var cleanCommand = &cobra.Command{
	Use:   "clean",
	Short: "Evict least-recently-used entries down to the configured maximum size",
	Run:   cmd.Mainify(cleanMain),
}

var clearCommand = &cobra.Command{
	Use:   "clear",
	Short: "Remove every entry from the cache",
	Run:   cmd.Mainify(clearMain),
}
