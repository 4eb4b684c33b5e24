// Package engine implements the Cache Engine (spec §4.9), the heart of the
// system: it orchestrates manifest-hash computation, the per-manifest
// single-flight and cross-process shard locks, Hash Server lookups, and the
// three outcomes of a compile request (clean hit, manifest-hit/object-miss
// repair, and full miss). Grounded on the teacher codebase's
// pkg/synchronization/core reconcile/apply staged-resolution pattern (read
// under lock, decide, act, commit) and pkg/state/tracker.go's
// coalesced-under-lock state publication; the manifest-then-object two-phase
// lock handoff has no direct teacher analogue and is new code written in
// the same explicit-context, explicit-error style.
package engine

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/clcache-go/clcache/internal/artifactstore"
	"github.com/clcache-go/clcache/internal/canon"
	"github.com/clcache-go/clcache/internal/cmdline"
	"github.com/clcache-go/clcache/internal/compiler"
	"github.com/clcache-go/clcache/internal/frontend"
	"github.com/clcache-go/clcache/internal/hasher"
	"github.com/clcache-go/clcache/internal/hashserver"
	"github.com/clcache-go/clcache/internal/lock"
	"github.com/clcache-go/clcache/internal/logging"
	"github.com/clcache-go/clcache/internal/manifeststore"
	"github.com/clcache-go/clcache/internal/stats"
)

// canonicalizedOptionNames lists the option values treated as paths for the
// purpose of folding them into the manifest hash, per spec §4.9 step (a).
// Everything else in the option table (switches, macro definitions) is
// already a stable, machine-independent string and is hashed verbatim.
var canonicalizedOptionNames = map[string]bool{
	"I": true, "Fo": true, "Fp": true, "Fi": true, "Tc": true, "Tp": true,
}

// Engine wires together every store and collaborator the compile protocol
// needs. One Engine is constructed per process invocation.
type Engine struct {
	Root           string
	Env            *canon.Environment
	Manifests      *manifeststore.Store
	Artifacts      *artifactstore.Store
	HashClient     *hashserver.Client
	InProcessLocks *lock.InProcess
	Stats          *stats.Accumulator
	Logger         *logging.Logger
	SelfExecutable string

	// ExtraCLArgs and ExtraUnderscoreCL are the tokenized CL/_CL_
	// environment variables (spec §4.8: "the CL and _CL_ environment
	// variables are tokenized and prepended/appended"), supplied by the
	// caller since only it knows the process environment.
	ExtraCLArgs       []string
	ExtraUnderscoreCL []string
}

// SourceResult is the outcome of compiling a single (source, object) pair.
type SourceResult struct {
	Source   string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Err      error
}

// Run classifies compilerPath's invocation, dispatches to the appropriate
// front-end, and either forwards uncacheable invocations directly or runs
// the per-source compile protocol with the classified parallelism bound,
// per spec §4.9 steps 1–3.
func (e *Engine) Run(ctx context.Context, compilerPath string, userArgs []string, includeDirs []string) ([]SourceResult, error) {
	front := frontend.ForExecutable(compilerPath)

	tokens := cmdline.MergeEnvironmentArgs(e.ExtraCLArgs, e.ExtraUnderscoreCL, userArgs)
	classification := front.Classify(tokens)

	if classification.Kind != cmdline.KindNormal {
		e.Stats.Miss(missReasonFor(classification.Kind))
		result, err := e.invokeReal(ctx, compilerPath, userArgs, nil)
		if err != nil {
			return nil, err
		}
		return []SourceResult{{ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}}, nil
	}

	parallelism := classification.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	results := make([]SourceResult, len(classification.Sources))
	sem := make(chan struct{}, parallelism)
	done := make(chan int, len(classification.Sources))

	for i, source := range classification.Sources {
		i, source := i, source
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; done <- i }()
			results[i] = e.compileOne(ctx, front, compilerPath, classification, tokens, i, source, includeDirs)
		}()
	}
	for range classification.Sources {
		<-done
	}

	return results, nil
}

func missReasonFor(kind cmdline.Kind) stats.MissReason {
	switch kind {
	case cmdline.KindPreprocessing:
		return stats.ReasonPreprocessing
	case cmdline.KindExternalDebugInfo:
		return stats.ReasonExternalDebugInfo
	case cmdline.KindPrecompiledHeader:
		return stats.ReasonPrecompiledHeader
	case cmdline.KindLinking:
		return stats.ReasonLinking
	case cmdline.KindNoSource:
		return stats.ReasonNoSource
	case cmdline.KindMultipleSourcesComplex:
		return stats.ReasonMultipleSources
	default:
		return stats.ReasonInvalidArgument
	}
}

// compileOne runs the single compile-unit protocol of spec §4.9 step 2 for
// one (source, object) pair.
func (e *Engine) compileOne(ctx context.Context, front frontend.FrontEnd, compilerPath string, c cmdline.Classification, originalArgs []string, index int, source string, includeDirs []string) SourceResult {
	objectPath := c.ObjectPaths[index]

	manifestHash, err := e.computeManifestHash(front, compilerPath, c.Options, source, includeDirs)
	if err != nil {
		e.Stats.Miss(stats.ReasonCacheFailure)
		return SourceResult{Source: source, Err: err}
	}

	release, err := e.InProcessLocks.Acquire(ctx, manifestHash)
	if err != nil {
		return SourceResult{Source: source, Err: errors.Wrap(err, "unable to acquire per-manifest lock")}
	}
	defer release()

	_, manifestExisted, entry, found, err := e.readManifest(ctx, manifestHash)
	if err != nil {
		e.Stats.Miss(stats.ReasonCacheFailure)
		return SourceResult{Source: source, Err: err}
	}

	if found {
		if result, ok := e.tryHit(ctx, front, manifestHash, entry, objectPath); ok {
			return SourceResult{Source: source, ExitCode: 0, Stdout: result.Stdout, Stderr: result.Stderr}
		}
		// Manifest-hit / object-miss repair path: the row exists but the
		// artifact was evicted or partially written.
		return e.repairObjectMiss(ctx, compilerPath, originalArgs, manifestHash, entry, source, objectPath)
	}

	reason := stats.ReasonSourceChanged
	if manifestExisted {
		reason = stats.ReasonHeaderChanged
	}
	return e.fullMiss(ctx, front, compilerPath, originalArgs, manifestHash, reason, source, objectPath)
}

// computeManifestHash implements spec §4.9 step (a): H(source-file-hash,
// compiler-hash, sorted canonicalized options, format-version). INCLUDE is
// folded into the /I list before sorting so that two compilations differing
// only in include search paths never collide.
func (e *Engine) computeManifestHash(front frontend.FrontEnd, compilerPath string, opts cmdline.Options, source string, includeDirs []string) (string, error) {
	sourceHash, err := hasher.HashFile(source, e.Env, front.CanonicalizeArtifact() && e.underBuildDir(source))
	if err != nil {
		return "", errors.Wrapf(err, "unable to hash source %s", source)
	}
	compilerHash, err := hasher.HashFile(compilerPath, e.Env, false)
	if err != nil {
		return "", errors.Wrapf(err, "unable to hash compiler %s", compilerPath)
	}

	canonicalArgs := e.canonicalizeOptions(opts, includeDirs)
	toolsetHash := hasher.ToolsetHash(compilerHash, canonicalArgs, manifeststore.FormatVersion)

	return hasher.HashBytes([]byte(sourceHash + "|" + toolsetHash)), nil
}

// canonicalizeOptions renders opts (with includeDirs folded into the /I
// list) as a sorted, deterministic slice of "name=value" strings, with
// path-valued options canonicalized first so the hash is portable across
// machines.
func (e *Engine) canonicalizeOptions(opts cmdline.Options, includeDirs []string) []string {
	merged := make(cmdline.Options, len(opts))
	for name, values := range opts {
		merged[name] = append([]string{}, values...)
	}
	merged["I"] = append(merged["I"], includeDirs...)

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	var rendered []string
	for _, name := range names {
		values := append([]string{}, merged[name]...)
		if canonicalizedOptionNames[name] {
			for i, v := range values {
				values[i] = e.Env.Canonicalize(v)
			}
		}
		sort.Strings(values)
		rendered = append(rendered, name+"="+strings.Join(values, ","))
	}
	return rendered
}

// readManifest reads the manifest under the manifest-shard lock, iterating
// entries from most-recent and recomputing each one's includes-content-hash
// via the Hash Server (falling back to in-process hashing), per spec §4.9
// step (c). The lock is released before returning.
func (e *Engine) readManifest(ctx context.Context, manifestHash string) (manifest *manifeststore.Manifest, existed bool, matched manifeststore.ManifestEntry, found bool, err error) {
	locker, lockErr := lock.AcquireShard(ctx, e.Root, lock.ManifestShard, manifestHash)
	if lockErr != nil {
		return nil, false, manifeststore.ManifestEntry{}, false, errors.Wrap(lockErr, "unable to acquire manifest shard lock")
	}
	defer locker.Close()

	m, _, existed, getErr := e.Manifests.Get(manifestHash)
	if getErr != nil {
		return nil, false, manifeststore.ManifestEntry{}, false, getErr
	}
	if m == nil {
		m = manifeststore.NewManifest()
	}

	for _, candidate := range m.Entries {
		absolute := make([]string, len(candidate.IncludeFiles))
		for i, placeholder := range candidate.IncludeFiles {
			absolute[i] = e.Env.Expand(placeholder)
		}
		contentHash, hashErr := e.hashIncludes(ctx, absolute)
		if hashErr != nil {
			// Include-not-found or unreadable: treat as a non-matching
			// entry and continue, per spec §7's Include-not-found kind.
			continue
		}
		if contentHash == candidate.IncludesContentHash {
			return m, existed, candidate, true, nil
		}
	}

	return m, existed, manifeststore.ManifestEntry{}, false, nil
}

// hashIncludes hashes every path in files via the Hash Server, falling back
// to in-process hashing on any client error (spec §4.4: "on any other error
// falls back silently"), and combines them per spec §3's includes-content-hash
// definition.
func (e *Engine) hashIncludes(ctx context.Context, files []string) (string, error) {
	if len(files) == 0 {
		return hasher.CombineHashes(nil), nil
	}

	if hashes, err := e.HashClient.HashFiles(ctx, files, e.SelfExecutable); err == nil {
		return hasher.CombineHashes(hashes), nil
	}

	hashes := make([]string, len(files))
	for i, f := range files {
		h, err := hasher.HashFile(f, e.Env, e.underBuildDir(f))
		if err != nil {
			return "", err
		}
		hashes[i] = h
	}
	return hasher.CombineHashes(hashes), nil
}

// hitResult carries a confirmed hit's decompressed artifact back up to Run.
type hitResult struct {
	Stdout []byte
	Stderr []byte
}

// tryHit attempts the object-shard artifact retrieval for a matched
// manifest entry (spec §4.9 step (d)): if the artifact is present, it is a
// confirmed hit — the entry is moved to the manifest head, the object is
// copied out, and captured output is expanded back to absolute paths.
func (e *Engine) tryHit(ctx context.Context, front frontend.FrontEnd, manifestHash string, entry manifeststore.ManifestEntry, objectPath string) (hitResult, bool) {
	objectLocker, err := lock.AcquireShard(ctx, e.Root, lock.ObjectShard, entry.ObjectHash)
	if err != nil {
		return hitResult{}, false
	}

	if !e.Artifacts.Has(entry.ObjectHash) {
		objectLocker.Close()
		return hitResult{}, false
	}

	retrieved, err := e.Artifacts.Get(entry.ObjectHash)
	objectLocker.Close()
	if err != nil {
		return hitResult{}, false
	}

	if err := retrieved.CopyObjectTo(objectPath); err != nil {
		e.Logger.Warnf("unable to copy cached object to %s: %v", objectPath, err)
		return hitResult{}, false
	}

	e.touchEntry(ctx, manifestHash, entry.ObjectHash)

	e.Stats.Hit()
	return hitResult{
		Stdout: []byte(e.Env.RewriteStreamLine(string(retrieved.Stdout), true)),
		Stderr: []byte(e.Env.RewriteStreamLine(string(retrieved.Stderr), true)),
	}, true
}

// touchEntry reacquires the manifest-shard lock (the object-shard lock must
// already have been released by the caller, per the lock-ordering rule in
// spec §5) and moves the entry for objectHash to the manifest's head.
func (e *Engine) touchEntry(ctx context.Context, manifestHash, objectHash string) {
	locker, err := lock.AcquireShard(ctx, e.Root, lock.ManifestShard, manifestHash)
	if err != nil {
		e.Logger.Warnf("unable to reacquire manifest lock to touch entry: %v", err)
		return
	}
	defer locker.Close()

	manifest, _, existed, err := e.Manifests.Get(manifestHash)
	if err != nil || !existed || manifest == nil {
		return
	}
	if manifest.TouchEntry(objectHash) {
		if _, err := e.Manifests.Set(manifestHash, manifest); err != nil {
			e.Logger.Warnf("unable to persist touched manifest entry: %v", err)
		}
	}
}

// repairObjectMiss implements spec §4.9 step (e): the manifest had a
// matching row but its artifact is gone. The real compiler is invoked
// (holding only the object-shard lock, never the manifest lock, per spec
// §5's "never hold both while running the compiler"), and on success the
// artifact is recommitted under the already-known object hash.
func (e *Engine) repairObjectMiss(ctx context.Context, compilerPath string, originalArgs []string, manifestHash string, entry manifeststore.ManifestEntry, source, objectPath string) SourceResult {
	objectLocker, err := lock.AcquireShard(ctx, e.Root, lock.ObjectShard, entry.ObjectHash)
	if err != nil {
		return SourceResult{Source: source, Err: err}
	}

	result, err := e.invokeReal(ctx, compilerPath, originalArgs, nil)
	if err != nil {
		objectLocker.Close()
		return SourceResult{Source: source, Err: err}
	}
	if result.ExitCode != 0 || !outputExists(objectPath) {
		objectLocker.Close()
		e.Stats.Miss(stats.ReasonCacheFailure)
		return SourceResult{Source: source, ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr}
	}

	canonicalStdout := e.Env.RewriteStreamLine(string(result.Stdout), false)
	canonicalStderr := e.Env.RewriteStreamLine(string(result.Stderr), false)
	size, commitErr := e.Artifacts.Set(entry.ObjectHash, objectPath, []byte(canonicalStdout), []byte(canonicalStderr))
	objectLocker.Close()
	if commitErr != nil {
		e.Stats.Miss(stats.ReasonCacheFailure)
		return SourceResult{Source: source, Err: commitErr}
	}

	e.touchEntry(ctx, manifestHash, entry.ObjectHash)
	e.Stats.EntryCreated(size)

	return SourceResult{Source: source, ExitCode: 0, Stdout: result.Stdout, Stderr: result.Stderr}
}

// fullMiss implements spec §4.9 step (f): no manifest entry matched at all.
// The real compiler is invoked with header discovery forced on, the include
// list is parsed from its output (or a dependency file for moc), and a new
// manifest entry plus artifact are committed.
func (e *Engine) fullMiss(ctx context.Context, front frontend.FrontEnd, compilerPath string, originalArgs []string, manifestHash string, reason stats.MissReason, source, objectPath string) SourceResult {
	e.Stats.Miss(reason)

	userRequestedShowIncludes := false
	for _, a := range originalArgs {
		if a == "/showIncludes" {
			userRequestedShowIncludes = true
			break
		}
	}

	depFilePath := objectPath + ".clcache.d"
	dumpArgs := front.InjectIncludeDump(originalArgs, depFilePath)

	result, err := e.invokeReal(ctx, compilerPath, dumpArgs, nil)
	if err != nil {
		return SourceResult{Source: source, Err: err}
	}

	var depFileContents string
	if data, readErr := os.ReadFile(depFilePath); readErr == nil {
		depFileContents = string(data)
		os.Remove(depFilePath)
	}

	includes, cleanedStdout := front.ExtractIncludes(string(result.Stdout), depFileContents, userRequestedShowIncludes)

	if result.ExitCode != 0 || !outputExists(objectPath) {
		e.Stats.Miss(stats.ReasonCacheFailure)
		return SourceResult{Source: source, ExitCode: result.ExitCode, Stdout: []byte(cleanedStdout), Stderr: result.Stderr}
	}

	includesContentHash, err := e.hashIncludes(ctx, includes)
	if err != nil {
		e.Stats.Miss(stats.ReasonCacheFailure)
		return SourceResult{Source: source, ExitCode: result.ExitCode, Stdout: []byte(cleanedStdout), Stderr: result.Stderr}
	}
	objectHash := hasher.HashBytes([]byte(manifestHash + "|" + includesContentHash))

	canonicalStdout := e.Env.RewriteStreamLine(cleanedStdout, false)
	canonicalStderr := e.Env.RewriteStreamLine(string(result.Stderr), false)

	objectLocker, err := lock.AcquireShard(ctx, e.Root, lock.ObjectShard, objectHash)
	if err != nil {
		return SourceResult{Source: source, Err: err}
	}
	size, err := e.Artifacts.Set(objectHash, objectPath, []byte(canonicalStdout), []byte(canonicalStderr))
	objectLocker.Close()
	if err != nil {
		e.Stats.Miss(stats.ReasonCacheFailure)
		return SourceResult{Source: source, Err: err}
	}

	placeholders := make([]string, len(includes))
	for i, f := range includes {
		placeholders[i] = e.Env.Canonicalize(f)
	}

	manifestLocker, err := lock.AcquireShard(ctx, e.Root, lock.ManifestShard, manifestHash)
	if err != nil {
		return SourceResult{Source: source, Err: err}
	}
	current, _, _, getErr := e.Manifests.Get(manifestHash)
	if getErr != nil || current == nil {
		current = manifeststore.NewManifest()
	}
	current.AddEntry(manifeststore.ManifestEntry{
		IncludeFiles:        placeholders,
		IncludesContentHash: includesContentHash,
		ObjectHash:          objectHash,
	})
	_, setErr := e.Manifests.Set(manifestHash, current)
	manifestLocker.Close()
	if setErr != nil {
		e.Logger.Warnf("unable to persist new manifest entry: %v", setErr)
	}

	e.Stats.EntryCreated(size)

	return SourceResult{Source: source, ExitCode: 0, Stdout: []byte(cleanedStdout), Stderr: result.Stderr}
}

// invokeReal runs the real compiler binary, per spec §4.9's "invoke the
// real compiler" steps.
func (e *Engine) invokeReal(ctx context.Context, compilerPath string, args []string, env []string) (*compiler.Result, error) {
	dir, err := os.Getwd()
	if err != nil {
		dir = ""
	}
	return compiler.Invoke(ctx, compilerPath, args, dir, env)
}

// underBuildDir reports whether path lies under the configured build
// directory, the condition spec §4.3 uses to decide whether to apply the
// source-embedded rewrite before hashing.
func (e *Engine) underBuildDir(path string) bool {
	canonical := e.Env.Canonicalize(path)
	return strings.HasPrefix(canonical, canon.PlaceholderBuildDir)
}

// outputExists reports whether the expected compiler output is present,
// the second half of spec §4.9's commit rule ("an artifact is persisted
// only if the compiler exited 0 and the expected output file exists").
func outputExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

