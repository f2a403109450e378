// meshprov provisions devices into mesh networks and simulates devices.
//
// Usage:
//
//	meshprov networks create --name home
//	meshprov networks list
//	meshprov device --listen :7373 --elements 2
//	meshprov provision --network <id> --addr 192.168.1.20:7373
//	meshprov simulate --network <id> --devices 3
//
// Networks and provisioned nodes are kept in a CBOR store file
// (default ~/.meshprov/networks.cbor). Settings can be given in a YAML file
// with --config; flags override it.
package main

import (
	"os"

	"github.com/backkem/meshprov/cmd/meshprov/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
