package main

import (
	"context"
	"os"
	"strings"

	"github.com/clcache-go/clcache/internal/artifactstore"
	"github.com/clcache-go/clcache/internal/cachedir"
	"github.com/clcache-go/clcache/internal/canon"
	"github.com/clcache-go/clcache/internal/cmd"
	"github.com/clcache-go/clcache/internal/cmdline"
	"github.com/clcache-go/clcache/internal/compiler"
	"github.com/clcache-go/clcache/internal/config"
	"github.com/clcache-go/clcache/internal/engine"
	"github.com/clcache-go/clcache/internal/hashserver"
	"github.com/clcache-go/clcache/internal/lock"
	"github.com/clcache-go/clcache/internal/logging"
	"github.com/clcache-go/clcache/internal/manifeststore"
	"github.com/clcache-go/clcache/internal/stats"
)

// runDirectInvocation handles the non-administrative mode named in spec §6:
// "the first positional argument is the compiler path ... and all following
// arguments are forwarded". It returns the process exit code to use.
func runDirectInvocation(compilerArg string, userArgs []string) int {
	env, err := config.NewEnvironmentFromOS()
	if err != nil {
		cmd.Error(err)
		return 1
	}
	logger := logging.NewLogger(env.LogLevel)

	compilerPath := compilerArg
	if env.CompilerOverride != "" {
		compilerPath = env.CompilerOverride
	}

	args, err := expandResponseFiles(userArgs)
	if err != nil {
		cmd.Error(err)
		return 1
	}

	if env.Disabled {
		return invokeWithoutCache(compilerPath, args)
	}

	if env.SingleFile {
		args = stripParallelismFlags(args)
	}

	canonEnv := canon.New(env.BaseDir, env.BuildDir)
	canonEnv.LatchLLVMRoot(compilerPath)

	manifestsDir, err := cachedir.Ensure(env.Root, cachedir.ManifestsDirectoryName)
	if err != nil {
		cmd.Error(err)
		return 1
	}
	objectsDir, err := cachedir.Ensure(env.Root, cachedir.ObjectsDirectoryName)
	if err != nil {
		cmd.Error(err)
		return 1
	}

	selfExecutable, err := os.Executable()
	if err != nil {
		cmd.Error(err)
		return 1
	}

	maxCacheSize, err := config.LoadMaxCacheSize(env.Root, logger)
	if err != nil {
		logger.Warnf("unable to load cache size configuration: %v", err)
		maxCacheSize = config.DefaultMaxCacheSize
	}

	accumulator := stats.NewAccumulator()
	e := &engine.Engine{
		Root:           env.Root,
		Env:            canonEnv,
		Manifests:      manifeststore.New(manifestsDir, logger),
		Artifacts:      artifactstore.New(objectsDir, logger),
		HashClient:     hashserver.NewClient(hashserver.DaemonDir(env.Root), logger),
		InProcessLocks: lock.NewInProcess(),
		Stats:          accumulator,
		Logger:         logger,
		SelfExecutable: selfExecutable,

		ExtraCLArgs:       env.ExtraCLArgs,
		ExtraUnderscoreCL: env.ExtraUnderscoreCL,
	}

	ctx := context.Background()
	results, err := e.Run(ctx, compilerPath, args, env.ExtraIncludeDirs)

	statsPath := statsFilePath(env.Root)
	buildDirStatsPath := ""
	if env.BuildDir != "" {
		buildDirStatsPath = buildDirStatsFilePath(env.BuildDir)
	}
	if flushErr := accumulator.Flush(statsPath, buildDirStatsPath, logger); flushErr != nil {
		logger.Warnf("unable to flush statistics: %v", flushErr)
	}

	if err != nil {
		cmd.Error(err)
		return 1
	}

	maybeTriggerEviction(ctx, env.Root, maxCacheSize, e, logger)

	return emitResults(results)
}

// stripParallelismFlags removes every /MP argument so that cmdline.ClassifyCl
// falls back to its sequential default, per CLCACHE_SINGLEFILE in spec §6
// ("force sequential even with multiple sources").
func stripParallelismFlags(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if strings.HasPrefix(a, "/MP") || strings.HasPrefix(a, "-MP") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// expandResponseFiles expands any `@file`-style response-file arguments in
// args, per spec §4.8. Each argv entry is already a single shell-split
// token, so every token is handed to cmdline.Tokenize independently rather
// than re-joining and re-splitting the whole argument vector.
func expandResponseFiles(args []string) ([]string, error) {
	var out []string
	for _, a := range args {
		if strings.HasPrefix(a, "@") && len(a) > 1 {
			expanded, err := cmdline.Tokenize(a, readResponseFile)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func readResponseFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return cmdline.DecodeResponseFile(data)
}

// invokeWithoutCache forwards directly to the real compiler, bypassing
// every cache component, per CLCACHE_DISABLE in spec §6.
func invokeWithoutCache(compilerPath string, args []string) int {
	dir, _ := os.Getwd()
	result, err := compiler.Invoke(context.Background(), compilerPath, args, dir, nil)
	if err != nil {
		cmd.Error(err)
		return 1
	}
	os.Stdout.Write(result.Stdout)
	os.Stderr.Write(result.Stderr)
	return result.ExitCode
}

// emitResults writes every source's captured output to the real stdout and
// stderr streams and computes the aggregate exit code (the first non-zero
// exit code encountered, or 0 if every source compiled cleanly), per spec
// §6 ("Exit code: the forwarded compiler's exit code").
func emitResults(results []engine.SourceResult) int {
	exitCode := 0
	for _, r := range results {
		if r.Err != nil {
			cmd.Error(r.Err)
			if exitCode == 0 {
				exitCode = 1
			}
			continue
		}
		os.Stdout.Write(r.Stdout)
		os.Stderr.Write(r.Stderr)
		if r.ExitCode != 0 && exitCode == 0 {
			exitCode = r.ExitCode
		}
	}
	return exitCode
}
