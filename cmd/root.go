package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openride/devicesim/app"
	"github.com/openride/devicesim/config"
)

var (
	cfgPath string
	devices string
	broker  string
)

var rootCmd = &cobra.Command{
	Use:   "devicesim",
	Short: "Vehicle telemetry device simulator",
	Long: `devicesim simulates a fleet of telemetry-emitting vehicle devices.
Each device publishes location, status and battery records over the message
bus and reacts to start_rent, end_rent and kill_vehicle control commands.`,
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.Flags().StringVar(&devices, "devices", "", "device identity list, overrides fleet.devices")
	rootCmd.Flags().StringVar(&broker, "broker", "", "bus address, overrides mqtt.broker")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if devices != "" {
		cfg.Fleet.Devices = devices
	}
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
