package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/fridge-daemon/internal/api"
	"github.com/sweeney/fridge-daemon/internal/credential"
	"github.com/sweeney/fridge-daemon/internal/daemon"
	"github.com/sweeney/fridge-daemon/internal/gpio"
	"github.com/sweeney/fridge-daemon/internal/retry"
	"github.com/sweeney/fridge-daemon/internal/snapshot"
)

func newPrintStateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "print-state",
		Short: "Read the door signal once and print the latest sensor snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			src, err := daemon.NewDoorSource(cfg.Door)
			if err != nil {
				return fmt.Errorf("init door source: %w", err)
			}
			defer src.Close()

			closed, err := src.Read()
			if err != nil {
				return fmt.Errorf("read door: %w", err)
			}
			out := cmd.OutOrStdout()
			printf(out, "door: %s\n", doorString(closed))

			snap, err := snapshot.ReadFresh(cfg.Telemetry.SnapshotPath, cfg.HTTP.SnapshotMaxAge.D(), time.Now())
			if err != nil {
				printf(out, "sensors: unavailable (%v)\n", err)
				return nil
			}
			printf(out, "temperature: %.2f\npower: %.2f\nupdated: %s\n",
				snap.Temperature, snap.Power, snap.LastUpdate.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func doorString(closed bool) string {
	if closed {
		return "CLOSED"
	}
	return "OPEN"
}

func newSetupCmd(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register this device with the backend and store the issued token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			client := api.New(cfg.API.Base, cfg.API.Timeout.D())
			exec := retry.New()
			creds := credential.NewManager(credential.NewStore(cfg.Credential.Path), client, exec,
				cfg.API.Retry.Policy(), cfg.Credential.ValidateAfter.D())
			if err := creds.Load(); err != nil {
				return err
			}
			if creds.IsConfigured() && !force {
				printf(cmd.OutOrStdout(), "already configured (%s); use --force to register again\n", cfg.Credential.Path)
				return nil
			}
			if err := register(cmd.Context(), creds, client, exec, cfg.API.Retry.Policy()); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "registered, token saved to %s\n", cfg.Credential.Path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Register even if a token is already stored")
	return cmd
}

func newDoorCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "door",
		Short: "Drive the simulated door signal file",
	}
	for _, action := range []struct {
		use    string
		closed bool
	}{{"open", false}, {"close", true}} {
		closed := action.closed
		cmd.AddCommand(&cobra.Command{
			Use:   action.use,
			Short: "Write " + doorString(closed) + " to the door signal file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(opts)
				if err != nil {
					return err
				}
				if err := gpio.WriteSignal(cfg.Door.SignalFile, closed); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "door: %s (%s)\n", doorString(closed), cfg.Door.SignalFile)
				return nil
			},
		})
	}
	return cmd
}

func newValidateConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the configuration, then print the effective values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			cmd.OutOrStdout().Write(data)
			return nil
		},
	}
}
