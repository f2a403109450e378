package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/backkem/meshprov/pkg/provisioner"
	"github.com/backkem/meshprov/pkg/provisioning"
	"github.com/backkem/meshprov/pkg/transport"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func deviceCmd(a *app) *cobra.Command {
	var (
		listen     string
		elements   uint8
		deviceUUID string
	)

	cmd := &cobra.Command{
		Use:   "device",
		Short: "Run a device that waits to be provisioned over UDP",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("listen") {
				listen = a.cfg.Device.Listen
			}
			if !flags.Changed("elements") {
				elements = a.cfg.Device.Elements
			}
			if !flags.Changed("uuid") {
				deviceUUID = a.cfg.Device.UUID
			}
			if elements == 0 {
				return fmt.Errorf("elements must be at least 1")
			}

			var id uuid.UUID
			if deviceUUID != "" {
				var err error
				if id, err = uuid.Parse(deviceUUID); err != nil {
					return fmt.Errorf("device UUID: %w", err)
				}
			}

			link, err := transport.NewUDP(transport.UDPConfig{
				ListenAddr:    listen,
				LoggerFactory: a.loggerFactory,
			})
			if err != nil {
				return err
			}
			defer link.Close()

			caps := provisioning.DefaultCapabilities()
			caps.Elements = elements
			r := provisioner.NewResponder(provisioner.ResponderConfig{
				UUID:          id,
				Capabilities:  caps,
				Timeout:       a.cfg.Timeout,
				LoggerFactory: a.loggerFactory,
			})

			fmt.Fprintf(a.out, "Device %s listening on %s\n", r.UUID(), link.LocalAddr())

			ctx, stop := signal.NotifyContext(commandContext(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, err := r.Serve(ctx, link)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Provisioned at 0x%04x into network with key index %d, IV index %d.\n",
				result.UnicastAddress, result.Data.KeyIndex, result.Data.IVIndex)
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "UDP listen address (default :7373)")
	cmd.Flags().Uint8Var(&elements, "elements", 1, "number of elements")
	cmd.Flags().StringVar(&deviceUUID, "uuid", "", "device UUID (default random)")
	return cmd
}
