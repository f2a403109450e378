// Package commands implements the meshprov command tree.
package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/backkem/meshprov/pkg/network"
	"github.com/pion/logging"
	"github.com/spf13/cobra"
)

// app is the state shared by all commands, set up before any of them runs.
type app struct {
	cfg           Config
	store         network.Store
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
	out           io.Writer
}

// Execute runs the command line.
func Execute() error {
	return newRootCmd(os.Stdout, os.Stderr).Execute()
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out}

	var (
		configPath string
		storePath  string
		logLevel   string
		timeout    time.Duration
	)

	root := &cobra.Command{
		Use:           "meshprov",
		Short:         "Mesh network provisioner",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("store") {
				cfg.Store = storePath
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("timeout") {
				cfg.Timeout = timeout
			}
			a.cfg = cfg

			level, err := parseLogLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			lf := logging.NewDefaultLoggerFactory()
			lf.DefaultLogLevel = level
			lf.Writer = errOut
			a.loggerFactory = lf
			a.log = lf.NewLogger("meshprov")

			path, err := cfg.storePath()
			if err != nil {
				return err
			}
			store, err := network.OpenFileStore(network.FileStoreConfig{
				Path:          path,
				LoggerFactory: lf,
			})
			if err != nil {
				return err
			}
			a.store = store
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&storePath, "store", "", "network store file (default ~/.meshprov/networks.cbor)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "disabled, error, warn, info, debug or trace")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 0, "handshake timeout (default 30s)")

	root.AddCommand(
		networksCmd(a),
		provisionCmd(a),
		deviceCmd(a),
		simulateCmd(a),
	)
	return root
}

// resolveNetwork returns the network named by id, or by the config, or the
// only stored network.
func (a *app) resolveNetwork(id string) (*network.Network, error) {
	if id == "" {
		id = a.cfg.Network.ID
	}
	if id != "" {
		nid, err := network.ParseNetworkID(id)
		if err != nil {
			return nil, err
		}
		return a.store.LoadNetwork(nid)
	}

	all, err := a.store.LoadNetworks()
	if err != nil {
		return nil, err
	}
	switch len(all) {
	case 0:
		return nil, fmt.Errorf("no networks; create one with 'meshprov networks create'")
	case 1:
		return all[0], nil
	default:
		return nil, fmt.Errorf("%d networks stored; choose one with --network", len(all))
	}
}
