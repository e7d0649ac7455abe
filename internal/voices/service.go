// Package voices ties the installer, the registry and the package root together.
//
// Install copies a package and then registers it. Delete removes the record
// first and then tries to remove the language directory; the record stays
// removed even when the directory cannot be deleted. Installs and deletes are
// serialised against each other, so a record never outlives its directory
// because of an interleaving.
package voices

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-installer/internal/core"
	"github.com/book-expert/voice-installer/internal/fsutil"
	"github.com/book-expert/voice-installer/internal/installer"
	"github.com/book-expert/voice-installer/internal/metrics"
	"github.com/book-expert/voice-installer/internal/registry"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrNotInstalled is returned when no record exists for the requested language.
	ErrNotInstalled = errors.New("voice is not installed")
	// ErrCleanupIncomplete is returned when the record was removed but the directory was not.
	ErrCleanupIncomplete = errors.New("voice directory cleanup incomplete")
)

// InstallOutcome is the result of a combined install and registration.
type InstallOutcome struct {
	Result core.InstallResult `json:"result"`
	Record core.PackageRecord `json:"record"`
	// Added is false when a record for the language already existed and was kept.
	Added bool `json:"added"`
}

// InstalledVoice is a registry record together with its on-disk location.
type InstalledVoice struct {
	Record  core.PackageRecord `json:"record"`
	Path    string             `json:"path"`
	Present bool               `json:"present"`
}

// Service runs install, registration and deletion against one package root.
type Service struct {
	// mutations is held from an install's copy through its registration and
	// from a delete's record removal through its directory removal.
	mutations *semaphore.Weighted
	installer *installer.Installer
	registry  *registry.Registry
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewService wires a service. m may be nil.
func NewService(
	inst *installer.Installer,
	reg *registry.Registry,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		mutations: semaphore.NewWeighted(1),
		installer: inst,
		registry:  reg,
		metrics:   m,
		log:       log,
	}
}

// Install copies src into the package root and registers it. When the
// registration fails a directory created by this install is removed again.
func (s *Service) Install(ctx context.Context, src installer.Source) (InstallOutcome, error) {
	start := time.Now()

	err := s.mutations.Acquire(ctx, 1)
	if err != nil {
		return InstallOutcome{}, fmt.Errorf("waiting for a running install or delete: %w", err)
	}
	defer s.mutations.Release(1)

	result, err := s.installer.Install(ctx, src)
	if err != nil {
		outcome := metrics.ResultError
		if errors.Is(err, installer.ErrUnsupportedPackage) {
			outcome = metrics.ResultUnsupported
		}

		s.metrics.ObserveInstall(outcome, "", time.Since(start).Seconds())

		return InstallOutcome{}, err
	}

	rec := core.NewRecord(result)

	added, err := s.registry.Add(ctx, rec)
	if err != nil {
		s.metrics.ObserveInstall(metrics.ResultError, result.Kind.String(), time.Since(start).Seconds())

		discardErr := s.installer.Discard(result)
		if discardErr != nil {
			s.log.Error("Failed to remove unregistered install %s: %v", result.DestinationPath, discardErr)
		}

		return InstallOutcome{}, fmt.Errorf("failed to register %s: %w", result.DestinationPath, err)
	}

	s.metrics.ObserveInstall(metrics.ResultSuccess, result.Kind.String(), time.Since(start).Seconds())

	if !added {
		s.log.Info("Language %s already registered, keeping the existing record", rec.Language)

		existing, ok, getErr := s.registry.Get(ctx, rec.Language)
		if getErr == nil && ok {
			rec = existing
		}
	}

	s.refreshCount(ctx)

	return InstallOutcome{Result: result, Record: rec, Added: added}, nil
}

// Register records a package that was placed under the package root by
// another component, such as the bulk downloader.
func (s *Service) Register(ctx context.Context, rec core.PackageRecord) (bool, error) {
	added, err := s.registry.Add(ctx, rec)
	if err != nil {
		return false, err
	}

	s.refreshCount(ctx)

	return added, nil
}

// UpdateTuning changes the speaker, speed and volume of an installed voice.
func (s *Service) UpdateTuning(ctx context.Context, language string, speaker int, speed, volume float64) error {
	updated, err := s.registry.UpdateTuning(ctx, language, speaker, speed, volume)
	if err != nil {
		return err
	}

	if !updated {
		return fmt.Errorf("%w: %s", ErrNotInstalled, language)
	}

	return nil
}

// List returns the registry records in insertion order.
func (s *Service) List(ctx context.Context) ([]core.PackageRecord, error) {
	return s.registry.List(ctx)
}

// Installed returns every record with its canonical directory and whether
// that directory exists.
func (s *Service) Installed(ctx context.Context) ([]InstalledVoice, error) {
	records, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	voices := make([]InstalledVoice, 0, len(records))

	for _, rec := range records {
		dir, dirErr := s.directory(rec)

		present := false

		if dirErr == nil {
			info, statErr := os.Stat(dir)
			present = statErr == nil && info.IsDir()
		}

		voices = append(voices, InstalledVoice{Record: rec, Path: dir, Present: present})
	}

	return voices, nil
}

// Delete removes the record for language and then its directory. When only
// the directory removal fails the returned error wraps ErrCleanupIncomplete.
func (s *Service) Delete(ctx context.Context, language string) error {
	err := s.mutations.Acquire(ctx, 1)
	if err != nil {
		return fmt.Errorf("waiting for a running install or delete: %w", err)
	}
	defer s.mutations.Release(1)

	rec, ok, err := s.registry.Get(ctx, language)
	if err != nil {
		s.metrics.ObserveDelete(metrics.ResultError)

		return err
	}

	if !ok {
		s.metrics.ObserveDelete(metrics.ResultError)

		return fmt.Errorf("%w: %s", ErrNotInstalled, language)
	}

	_, err = s.registry.Remove(ctx, language)
	if err != nil {
		s.metrics.ObserveDelete(metrics.ResultError)

		return err
	}

	s.refreshCount(ctx)

	err = s.removeDirectory(rec)
	if err != nil {
		s.log.Warn("Removed voice record %s but not its files: %v", language, err)
		s.metrics.ObserveDelete(metrics.ResultPartial)

		return fmt.Errorf("%w: %w", ErrCleanupIncomplete, err)
	}

	s.log.Info("Deleted voice %s", language)
	s.metrics.ObserveDelete(metrics.ResultSuccess)

	return nil
}

func (s *Service) removeDirectory(rec core.PackageRecord) error {
	dir, err := s.directory(rec)
	if err != nil {
		return err
	}

	err = os.RemoveAll(dir)
	if err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}

	return nil
}

// directory resolves the canonical directory of rec inside the package root.
func (s *Service) directory(rec core.PackageRecord) (string, error) {
	folder := rec.FolderName
	if folder == "" {
		folder = core.FolderName(rec.Language, rec.Region)
	}

	err := fsutil.CheckName(folder)
	if err != nil {
		return "", fmt.Errorf("folder of %s: %w", rec.Language, err)
	}

	if folder == filepath.Base(s.installer.ScratchDir()) {
		return "", fmt.Errorf("folder of %s: %w: reserved name %q", rec.Language, fsutil.ErrUnsafeName, folder)
	}

	return filepath.Join(s.installer.PackageRoot(), folder), nil
}

func (s *Service) refreshCount(ctx context.Context) {
	if s.metrics == nil {
		return
	}

	records, err := s.registry.List(ctx)
	if err != nil {
		return
	}

	s.metrics.SetRegistered(len(records))
}
