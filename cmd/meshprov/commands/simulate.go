package commands

import (
	"fmt"
	"sync"
	"time"

	"github.com/backkem/meshprov/pkg/network"
	"github.com/backkem/meshprov/pkg/provisioner"
	"github.com/backkem/meshprov/pkg/provisioning"
	"github.com/backkem/meshprov/pkg/transport"
	"github.com/spf13/cobra"
)

func simulateCmd(a *app) *cobra.Command {
	var (
		networkID string
		devices   int
		elements  uint8
		dropRate  float64
		delayMin  time.Duration
		delayMax  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Provision simulated devices over in-memory links",
		RunE: func(cmd *cobra.Command, args []string) error {
			if devices < 1 {
				return fmt.Errorf("devices must be at least 1")
			}
			if elements == 0 {
				return fmt.Errorf("elements must be at least 1")
			}
			if delayMax < delayMin {
				delayMax = delayMin
			}

			n, err := a.resolveNetwork(networkID)
			if err != nil {
				return err
			}
			client, err := a.newClient()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd.Context())

			caps := provisioning.DefaultCapabilities()
			caps.Elements = elements

			nodes := make([]*network.Node, devices)
			errs := make([]error, devices)
			var wg sync.WaitGroup

			for i := 0; i < devices; i++ {
				pipe := transport.NewPipe()
				pipe.SetCondition(transport.NetworkCondition{
					DropRate: dropRate,
					DelayMin: delayMin,
					DelayMax: delayMax,
				})
				pLink, dLink, err := pipe.Links(a.loggerFactory)
				if err != nil {
					pipe.Close()
					errs[i] = err
					continue
				}

				r := provisioner.NewResponder(provisioner.ResponderConfig{
					Capabilities:  caps,
					Timeout:       a.cfg.Timeout,
					LoggerFactory: a.loggerFactory,
				})

				wg.Add(2)
				go func() {
					defer wg.Done()
					defer dLink.Close()
					_, _ = r.Serve(ctx, dLink)
				}()
				go func(i int) {
					defer wg.Done()
					nodes[i], errs[i] = client.Provision(ctx, pLink, provisioner.Request{
						NetworkID:  n.ID,
						DeviceUUID: r.UUID(),
					})
				}(i)
			}
			wg.Wait()

			failed := 0
			for i := range nodes {
				if errs[i] != nil {
					failed++
					fmt.Fprintf(a.out, "Device %d failed: %v\n", i+1, errs[i])
					continue
				}
				printNode(a, n.ID, nodes[i])
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d devices failed", failed, devices)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&networkID, "network", "", "network ID (default: the only stored network)")
	cmd.Flags().IntVar(&devices, "devices", 1, "number of devices")
	cmd.Flags().Uint8Var(&elements, "elements", 1, "elements per device")
	cmd.Flags().Float64Var(&dropRate, "drop-rate", 0, "probability of losing a frame (0.0-1.0)")
	cmd.Flags().DurationVar(&delayMin, "delay-min", 0, "minimum delay added to each frame")
	cmd.Flags().DurationVar(&delayMax, "delay-max", 0, "maximum delay added to each frame")
	return cmd
}
