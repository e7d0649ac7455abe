// voicectl installs, lists, tunes and removes voice packages under a local package root.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-installer/internal/config"
	"github.com/book-expert/voice-installer/internal/installer"
	"github.com/book-expert/voice-installer/internal/kvstore"
	"github.com/book-expert/voice-installer/internal/registry"
	"github.com/book-expert/voice-installer/internal/voices"
	"github.com/spf13/cobra"
)

// Flag names and descriptions.
const (
	flagConfig      = "config"
	flagRoot        = "root"
	flagRegistryDir = "registry-dir"
	flagJSON        = "json"
	flagSpeaker     = "speaker"
	flagSpeed       = "speed"
	flagVolume      = "volume"

	flagConfigDesc      = "Path to a TOML configuration file"
	flagRootDesc        = "Package root (overrides installer.package_root)"
	flagRegistryDirDesc = "Registry directory (overrides registry.file_dir)"
	flagJSONDesc        = "Print JSON instead of a table"
	flagSpeakerDesc     = "Speaker index (>= 0)"
	flagSpeedDesc       = "Speech rate multiplier (> 0)"
	flagVolumeDesc      = "Volume multiplier (> 0)"
)

// Messages.
const (
	msgInstalled       = "Installed %s (%s_%s, %s) into %s\n"
	msgAlreadyPresent  = "Language %s already registered as %q, record kept\n"
	msgRemoved         = "Removed %s\n"
	msgTuned           = "Updated %s: speaker=%d speed=%g volume=%g\n"
	msgNoVoices        = "No voices installed"
	logFileName        = "voicectl.log"
	defaultConfigFile  = "voicectl.toml"
	errFailedToSetup   = "failed to set up voicectl: %w"
	errNothingToUpdate = "nothing to update: pass --speaker, --speed or --volume"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	service *voices.Service
	log     *logger.Logger
	out     io.Writer
}

type rootOptions struct {
	configPath  string
	root        string
	registryDir string
}

func main() {
	err := newRootCmd(os.Stdout).Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	state := &app{out: out}

	rootCmd := &cobra.Command{
		Use:           "voicectl",
		Short:         "Manage locally installed voice packages",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return state.setup(opts)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if state.log == nil {
				return nil
			}

			return state.log.Close()
		},
	}

	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVar(&opts.configPath, flagConfig, defaultConfigFile, flagConfigDesc)
	rootCmd.PersistentFlags().StringVar(&opts.root, flagRoot, "", flagRootDesc)
	rootCmd.PersistentFlags().StringVar(&opts.registryDir, flagRegistryDir, "", flagRegistryDirDesc)

	rootCmd.AddCommand(
		installCmd(state),
		listCmd(state),
		removeCmd(state),
		tuneCmd(state),
	)

	return rootCmd
}

// setup loads the configuration and wires a service over the local file registry.
func (a *app) setup(opts *rootOptions) error {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf(errFailedToSetup, err)
	}

	if opts.root != "" {
		cfg.Installer.PackageRoot = opts.root
	}

	if opts.registryDir != "" {
		cfg.Registry.FileDir = opts.registryDir
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return fmt.Errorf(errFailedToSetup, err)
	}

	inst, err := installer.New(installer.Config{
		PackageRoot:    cfg.Installer.PackageRoot,
		ScratchDirName: cfg.Installer.ScratchDirName,
	}, log)
	if err != nil {
		_ = log.Close()

		return fmt.Errorf(errFailedToSetup, err)
	}

	store, err := kvstore.NewFileStore(cfg.Registry.FileDir)
	if err != nil {
		_ = log.Close()

		return fmt.Errorf(errFailedToSetup, err)
	}

	a.log = log
	a.service = voices.NewService(inst, registry.New(store, log), nil, log)

	return nil
}

func installCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install <file|archive|directory>",
		Short: "Install a voice package and register it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := a.service.Install(cmd.Context(), installer.PathSource{Path: args[0]})
			if err != nil {
				return err
			}

			result := outcome.Result
			fmt.Fprintf(a.out, msgInstalled,
				result.DisplayName, result.Language, result.Region, result.Kind, result.DestinationPath)

			if !outcome.Added {
				fmt.Fprintf(a.out, msgAlreadyPresent, outcome.Record.Language, outcome.Record.DisplayName)
			}

			return nil
		},
	}
}

func listCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			installed, err := a.service.Installed(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")

				return enc.Encode(installed)
			}

			if len(installed) == 0 {
				fmt.Fprintln(a.out, msgNoVoices)

				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LANG\tREGION\tKIND\tNAME\tSPEAKER\tSPEED\tVOLUME\tPRESENT")

			for _, v := range installed {
				rec := v.Record
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%g\t%g\t%s\n",
					rec.Language, rec.Region, rec.Kind, rec.DisplayName,
					rec.SpeakerIndex, rec.Speed, rec.Volume, strconv.FormatBool(v.Present))
			}

			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, flagJSON, false, flagJSONDesc)

	return cmd
}

func removeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <language>",
		Aliases: []string{"rm", "delete"},
		Short:   "Unregister a voice and delete its directory",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.service.Delete(cmd.Context(), args[0])
			if err != nil && !errors.Is(err, voices.ErrCleanupIncomplete) {
				return err
			}

			fmt.Fprintf(a.out, msgRemoved, args[0])

			return err
		},
	}
}

func tuneCmd(a *app) *cobra.Command {
	var (
		speaker int
		speed   float64
		volume  float64
	)

	cmd := &cobra.Command{
		Use:   "tune <language>",
		Short: "Change the speaker, speed or volume of an installed voice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed(flagSpeaker) && !flags.Changed(flagSpeed) && !flags.Changed(flagVolume) {
				return errors.New(errNothingToUpdate)
			}

			voiceList, err := a.service.List(cmd.Context())
			if err != nil {
				return err
			}

			for _, rec := range voiceList {
				if rec.Language != args[0] {
					continue
				}

				if !flags.Changed(flagSpeaker) {
					speaker = rec.SpeakerIndex
				}

				if !flags.Changed(flagSpeed) {
					speed = rec.Speed
				}

				if !flags.Changed(flagVolume) {
					volume = rec.Volume
				}
			}

			err = a.service.UpdateTuning(cmd.Context(), args[0], speaker, speed, volume)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, msgTuned, args[0], speaker, speed, volume)

			return nil
		},
	}

	cmd.Flags().IntVar(&speaker, flagSpeaker, 0, flagSpeakerDesc)
	cmd.Flags().Float64Var(&speed, flagSpeed, 1, flagSpeedDesc)
	cmd.Flags().Float64Var(&volume, flagVolume, 1, flagVolumeDesc)

	return cmd
}
