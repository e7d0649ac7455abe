// Package installer turns a user supplied voice package into an installed,
// canonical per-language directory.
//
// One Install call is a transaction over a single shared scratch directory:
// stage the source, detect its layout, resolve its locale and copy the package
// files into <root>/<lang><region>. Calls are serialised because staging wipes
// the scratch directory. Registration in the registry is left to the caller.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-installer/internal/core"
	"github.com/book-expert/voice-installer/internal/fsutil"
	"github.com/book-expert/voice-installer/internal/layout"
	"github.com/book-expert/voice-installer/internal/naming"
	"golang.org/x/sync/semaphore"
)

// DefaultScratchDirName is the scratch directory created under the package root.
const DefaultScratchDirName = "import-temp"

const stagingDirName = "package"

var (
	// ErrSourceUnreadable is returned when the input stream or tree cannot be opened or read.
	ErrSourceUnreadable = errors.New("source is unreadable")
	// ErrUnsupportedPackage is returned when the staged files match no known layout.
	ErrUnsupportedPackage = errors.New("unsupported voice package")
	// ErrIO is returned for filesystem failures while staging or copying.
	ErrIO = errors.New("install i/o failure")
	// ErrPackageRootEmpty is returned by New when no package root is configured.
	ErrPackageRootEmpty = errors.New("package root cannot be empty")
)

// Config holds the installer locations.
type Config struct {
	PackageRoot    string
	ScratchDirName string
}

// Installer runs install transactions against one package root.
type Installer struct {
	packageRoot string
	scratchDir  string
	scratch     *semaphore.Weighted
	log         *logger.Logger
}

// New creates an installer, creating the package root if needed.
func New(cfg Config, log *logger.Logger) (*Installer, error) {
	if cfg.PackageRoot == "" {
		return nil, ErrPackageRootEmpty
	}

	scratchName := cfg.ScratchDirName
	if scratchName == "" {
		scratchName = DefaultScratchDirName
	}

	err := fsutil.CheckName(scratchName)
	if err != nil {
		return nil, fmt.Errorf("invalid scratch directory name: %w", err)
	}

	err = fsutil.EnsureDir(cfg.PackageRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	return &Installer{
		packageRoot: cfg.PackageRoot,
		scratchDir:  filepath.Join(cfg.PackageRoot, scratchName),
		scratch:     semaphore.NewWeighted(1),
		log:         log,
	}, nil
}

// PackageRoot returns the directory holding the canonical per-language directories.
func (i *Installer) PackageRoot() string {
	return i.packageRoot
}

// ScratchDir returns the shared staging directory.
func (i *Installer) ScratchDir() string {
	return i.scratchDir
}

// Install stages src, detects its layout and copies the package files into the
// canonical directory for its language. A concurrent call blocks until the
// running one has finished, or returns ctx.Err() if ctx ends first.
func (i *Installer) Install(ctx context.Context, src Source) (core.InstallResult, error) {
	if src == nil {
		return core.InstallResult{}, fmt.Errorf("%w: no source given", ErrSourceUnreadable)
	}

	err := i.scratch.Acquire(ctx, 1)
	if err != nil {
		return core.InstallResult{}, fmt.Errorf("waiting for the scratch area: %w", err)
	}
	defer i.scratch.Release(1)

	i.log.Info("Installing voice package from %s", src.describe())

	staging, err := i.resetScratch()
	if err != nil {
		return core.InstallResult{}, err
	}

	defer i.clearScratch()

	err = src.materialize(ctx, i.scratchDir, staging)
	if err != nil {
		i.log.Error("Failed to stage %s: %v", src.describe(), err)

		return core.InstallResult{}, err
	}

	match, err := layout.Detect(staging)
	if err != nil {
		if errors.Is(err, layout.ErrNotFound) {
			i.log.Warn("Rejected %s: no supported layout", src.describe())

			return core.InstallResult{}, fmt.Errorf("%w: expecting %s", ErrUnsupportedPackage, layout.ExpectedLayouts)
		}

		return core.InstallResult{}, fmt.Errorf("%w: %w", ErrIO, err)
	}

	result, err := i.commit(match)
	if err != nil {
		i.log.Error("Failed to install %s: %v", src.describe(), err)

		return core.InstallResult{}, err
	}

	i.log.Info("Installed %s voice %s into %s", result.Kind, result.DisplayName, result.DestinationPath)

	return result, nil
}

// commit copies the detected package files into the canonical directory.
func (i *Installer) commit(match layout.Match) (core.InstallResult, error) {
	displayName := naming.BaseName(match.Primary)
	language, region := naming.Resolve(displayName)
	folder := core.FolderName(language, region)

	err := fsutil.CheckName(folder)
	if err != nil {
		return core.InstallResult{}, fmt.Errorf("%w: derived folder: %w", ErrUnsupportedPackage, err)
	}

	dest := filepath.Join(i.packageRoot, folder)

	_, statErr := os.Stat(dest)
	created := errors.Is(statErr, os.ErrNotExist)

	err = fsutil.EnsureDir(dest)
	if err != nil {
		return core.InstallResult{}, fmt.Errorf("%w: %w", ErrIO, err)
	}

	files := make([]string, 0, len(match.Files()))

	for _, src := range match.Files() {
		name := filepath.Base(src)

		err = fsutil.CopyFileAtomic(src, filepath.Join(dest, name))
		if err != nil {
			if created {
				i.discard(dest)
			}

			return core.InstallResult{}, fmt.Errorf("%w: %w", ErrIO, err)
		}

		files = append(files, name)
	}

	return core.InstallResult{
		DestinationPath: dest,
		DisplayName:     displayName,
		Language:        language,
		Region:          region,
		Kind:            match.Kind,
		Files:           files,
		Created:         created,
	}, nil
}

// Discard removes a canonical directory that an install created, for callers
// that could not register the result.
func (i *Installer) Discard(result core.InstallResult) error {
	if !result.Created {
		return nil
	}

	if filepath.Dir(result.DestinationPath) != filepath.Clean(i.packageRoot) ||
		filepath.Clean(result.DestinationPath) == filepath.Clean(i.scratchDir) {
		return fmt.Errorf("%w: %s is not a package directory", ErrIO, result.DestinationPath)
	}

	err := os.RemoveAll(result.DestinationPath)
	if err != nil {
		return fmt.Errorf("%w: discard %s: %w", ErrIO, result.DestinationPath, err)
	}

	i.log.Warn("Discarded unregistered install at %s", result.DestinationPath)

	return nil
}

func (i *Installer) discard(dest string) {
	err := os.RemoveAll(dest)
	if err != nil {
		i.log.Warn("Failed to remove partial install %s: %v", dest, err)
	}
}

// resetScratch wipes and recreates the scratch directory and returns the staging path.
func (i *Installer) resetScratch() (string, error) {
	err := os.RemoveAll(i.scratchDir)
	if err != nil {
		return "", fmt.Errorf("%w: clear scratch %s: %w", ErrIO, i.scratchDir, err)
	}

	staging := filepath.Join(i.scratchDir, stagingDirName)

	err = fsutil.EnsureDir(staging)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}

	return staging, nil
}

func (i *Installer) clearScratch() {
	err := os.RemoveAll(i.scratchDir)
	if err != nil {
		i.log.Warn("Failed to remove scratch directory '%s': %v", i.scratchDir, err)
	}
}
