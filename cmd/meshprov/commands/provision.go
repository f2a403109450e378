package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/backkem/meshprov/pkg/network"
	"github.com/backkem/meshprov/pkg/provisioner"
	"github.com/backkem/meshprov/pkg/provisioning"
	"github.com/backkem/meshprov/pkg/transport"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func provisionCmd(a *app) *cobra.Command {
	var (
		networkID  string
		addr       string
		deviceUUID string
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision a device listening on UDP into a network",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.resolveNetwork(networkID)
			if err != nil {
				return err
			}

			var id uuid.UUID
			if deviceUUID != "" {
				if id, err = uuid.Parse(deviceUUID); err != nil {
					return fmt.Errorf("device UUID: %w", err)
				}
			}

			client, err := a.newClient()
			if err != nil {
				return err
			}

			link, err := transport.DialUDP(addr, a.loggerFactory)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			node, err := client.Provision(ctx, link, provisioner.Request{NetworkID: n.ID, DeviceUUID: id})
			if err != nil {
				return err
			}
			printNode(a, n.ID, node)
			return nil
		},
	}

	cmd.Flags().StringVar(&networkID, "network", "", "network ID (default: the only stored network)")
	cmd.Flags().StringVar(&addr, "addr", "", "device address host:port")
	cmd.Flags().StringVar(&deviceUUID, "uuid", "", "device UUID (default random)")
	cmd.MarkFlagRequired("addr")
	return cmd
}

func (a *app) newClient() (*provisioner.Client, error) {
	return provisioner.NewClient(provisioner.ClientConfig{
		Store:   a.store,
		Timeout: a.cfg.Timeout,
		Callbacks: provisioner.Callbacks{
			OnStateChanged: func(from, to provisioning.State) {
				if a.log != nil {
					a.log.Debugf("%s -> %s", from, to)
				}
			},
			OnCapabilities: func(caps provisioning.Capabilities) {
				if a.log != nil {
					a.log.Infof("device has %d element(s), algorithms 0x%04x", caps.Elements, caps.Algorithms)
				}
			},
		},
		LoggerFactory: a.loggerFactory,
	})
}

func printNode(a *app, id network.NetworkID, node *network.Node) {
	fmt.Fprintf(a.out, "Provisioned %s into %s at 0x%04x (%d element(s)).\n",
		node.UUID, id, node.Address, node.Elements)
}

// commandContext returns ctx, or a background context when the command was
// run without one.
func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
