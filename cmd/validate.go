package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openride/devicesim/core/sim"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ids := sim.ParseIdentities(cfg.Fleet.Devices)
	fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d devices, broker %s\n", len(ids), cfg.MQTT.Broker)
	return nil
}
