// Command fridge-daemon watches the fridge door, samples the appliance
// sensors and keeps the remote inventory in sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sweeney/fridge-daemon/internal/api"
	"github.com/sweeney/fridge-daemon/internal/config"
	"github.com/sweeney/fridge-daemon/internal/credential"
	"github.com/sweeney/fridge-daemon/internal/daemon"
	"github.com/sweeney/fridge-daemon/internal/retry"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// options holds the persistent flags.
type options struct {
	configPath string
	envFile    string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "fridge-daemon",
		Short:         "Fridge appliance daemon: door monitor, sensor sampling and inventory capture",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
			}
			return loadEnv(opts.envFile)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the YAML config file (default $"+config.EnvConfig+")")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file loaded before the config")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	root.AddCommand(
		newRunCmd(opts),
		newPrintStateCmd(opts),
		newSetupCmd(opts),
		newDoorCmd(opts),
		newValidateConfigCmd(opts),
	)
	return root
}

// loadEnv loads path into the environment. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadConfig resolves the config path, applies environment overrides and
// validates the result.
func loadConfig(opts *options) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			return run(cmd.Context(), cfg, sigCh)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, sig <-chan os.Signal) error {
	if ctx == nil {
		ctx = context.Background()
	}
	client := api.New(cfg.API.Base, cfg.API.Timeout.D())
	exec := retry.New()

	sup := daemon.New(cfg, client, daemon.FactoriesFromConfig(cfg, exec), exec)
	if err := sup.Start(ctx); err != nil {
		return err
	}

	// Registration retries for up to a minute; a signal must not wait on it.
	regCtx, cancelReg := context.WithCancel(ctx)
	defer cancelReg()
	registered := make(chan struct{})
	if sup.Credentials().IsConfigured() {
		close(registered)
	} else {
		go func() {
			defer close(registered)
			if err := register(regCtx, sup.Credentials(), client, exec, cfg.API.Retry.Policy()); err != nil {
				log.Printf("setup: %v (continuing without a token)", err)
			}
		}()
	}

	reason := "CANCELLED"
	select {
	case s := <-sig:
		log.Printf("received %v, shutting down", s)
		reason = signalName(s)
	case <-ctx.Done():
	}
	cancelReg()
	<-registered
	return sup.Stop(reason)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// Registrar issues a token for a new device.
type Registrar interface {
	Setup(ctx context.Context) (string, error)
}

// register obtains a token from the backend and persists it.
func register(ctx context.Context, creds *credential.Manager, r Registrar, exec *retry.Executor, policy retry.Policy) error {
	var token string
	err := exec.Do(ctx, "setup: register device", policy, func(ctx context.Context) error {
		t, err := r.Setup(ctx)
		if err != nil {
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		return err
	}
	if err := creds.Configure(token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	log.Printf("setup: device registered")
	return nil
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
