package commands

import (
	"crypto/rand"
	"fmt"
	"text/tabwriter"

	"github.com/backkem/meshprov/pkg/network"
	"github.com/spf13/cobra"
)

func networksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "networks",
		Short: "Manage networks and list provisioned nodes",
	}
	cmd.AddCommand(networksCreateCmd(a), networksListCmd(a), networksDeleteCmd(a))
	return cmd
}

func networksCreateCmd(a *app) *cobra.Command {
	var (
		name         string
		netKey       string
		keyIndex     uint16
		ivIndex      uint32
		firstAddress uint16
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a network with a new or given network key",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("name") {
				name = a.cfg.Network.Name
			}
			if !flags.Changed("net-key") {
				netKey = a.cfg.Network.NetKey
			}
			if !flags.Changed("key-index") {
				keyIndex = a.cfg.Network.KeyIndex
			}
			if !flags.Changed("iv-index") {
				ivIndex = a.cfg.Network.IVIndex
			}
			if !flags.Changed("first-address") {
				firstAddress = a.cfg.Network.FirstAddress
			}

			var key [network.NetKeySize]byte
			if netKey != "" {
				var err error
				if key, err = parseNetKey(netKey); err != nil {
					return err
				}
			} else if _, err := rand.Read(key[:]); err != nil {
				return fmt.Errorf("generate network key: %w", err)
			}

			n, err := network.New(name, key, keyIndex, ivIndex)
			if err != nil {
				return err
			}
			if firstAddress != 0 {
				n.FirstAddress = firstAddress
			}

			if existing, err := a.store.LoadNetwork(n.ID); err == nil {
				return fmt.Errorf("%w: %s (%s)", network.ErrNetworkExists, existing.ID, existing.Name)
			}
			if err := a.store.SaveNetwork(n); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Network created.\nID: %s\n", n.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "network name")
	cmd.Flags().StringVar(&netKey, "net-key", "", "network key as 32 hex digits (default random)")
	cmd.Flags().Uint16Var(&keyIndex, "key-index", 0, "network key index")
	cmd.Flags().Uint32Var(&ivIndex, "iv-index", 0, "IV index")
	cmd.Flags().Uint16Var(&firstAddress, "first-address", 0, "first unicast address to assign (default 0x0001)")
	return cmd
}

func networksListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List networks and their nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := a.store.LoadNetworks()
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Fprintln(a.out, "No networks.")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			for _, n := range all {
				fmt.Fprintf(w, "%s\t%s\tkey index %d\tIV index %d\t%d nodes\n",
					n.ID, n.Name, n.KeyIndex, n.IVIndex, len(n.Nodes))
				for _, node := range n.Nodes {
					fmt.Fprintf(w, "  0x%04x\t%s\t%d elements\t%s\n",
						node.Address, node.UUID, node.Elements, node.ProvisionedAt.Format("2006-01-02 15:04:05"))
				}
			}
			return w.Flush()
		},
	}
}

func networksDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <network-id>",
		Short: "Delete a network and forget its nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := network.ParseNetworkID(args[0])
			if err != nil {
				return err
			}
			if err := a.store.DeleteNetwork(id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Network %s deleted.\n", id)
			return nil
		},
	}
}
