package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nexusshell/corectl/pkg/config"
	"github.com/nexusshell/corectl/pkg/daemon"
	"github.com/nexusshell/corectl/pkg/log"
	"github.com/nexusshell/corectl/pkg/storage"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the corectl control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
			return err
		}
		store, err := storage.NewBoltStore(cfg.DataRoot)
		if err != nil {
			return err
		}

		d, err := daemon.New(cfg, store)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		go watchSignals(sigCh, cancel, func() {
			if configPath != "" {
				if reloaded, err := config.Load(configPath); err == nil {
					reloaded.ApplyEnv()
					if err := reloaded.Validate(); err == nil {
						d.ReloadConfig(reloaded)
					}
				}
			}
		})

		logger := log.WithComponent("cmd")
		logger.Info().Str("data_root", cfg.DataRoot).Msg("starting corectl daemon")
		return d.Run(ctx)
	},
}

func init() {
	daemonCmd.Flags().String("config", "", "Path to YAML config file")
}

// watchSignals cancels the daemon context on SIGINT/SIGTERM and invokes
// reload on SIGHUP, mirroring the teacher's signal-handling goroutine.
func watchSignals(sigCh <-chan os.Signal, cancel context.CancelFunc, reload func()) {
	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			reload()
		default:
			cancel()
			return
		}
	}
}
