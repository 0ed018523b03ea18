package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDevicesCommand lists the available output devices.
func newDevicesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List available output devices",
		RunE:  runDevicesE,
	}
	cmd.Flags().String("driver", "", "Output driver (auto, malgo, oto, null)")
	return cmd
}

func runDevicesE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	setupLogging(cfg, cmd.ErrOrStderr())

	driver, err := cli.driverFactory.CreateDriver(cfg.Driver)
	if err != nil {
		cmd.PrintErrf("Error creating output driver: %v\n", err)
		return fmt.Errorf("error creating output driver: %w", err)
	}
	defer driver.Close()

	devices, err := driver.Devices()
	if err != nil {
		cmd.PrintErrf("Error enumerating devices: %v\n", err)
		return fmt.Errorf("error enumerating devices: %w", err)
	}

	if len(devices) == 0 {
		cmd.Println("No output devices found.")
		return nil
	}

	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		cmd.Printf("%s %s  [%s]\n", marker, name, d.ID)
	}
	return nil
}
