package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Manage container networks",
}

var (
	networkCreateDriver string
	networkCreateSubnet string
	networkRemoveForce  bool
)

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		nets, err := daemonClient(cmd).NetworkList()
		if err != nil {
			return err
		}
		for _, n := range nets {
			b, _ := json.Marshal(n)
			fmt.Println(string(b))
		}
		return nil
	},
}

var networkCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonClient(cmd).NetworkCreate(args[0], networkCreateDriver, networkCreateSubnet)
	},
}

var networkRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonClient(cmd).NetworkRemove(args[0], networkRemoveForce)
	},
}

func init() {
	networkCreateCmd.Flags().StringVar(&networkCreateDriver, "driver", "bridge", "network driver (bridge|host|none)")
	networkCreateCmd.Flags().StringVar(&networkCreateSubnet, "subnet", "", "subnet CIDR")
	networkRemoveCmd.Flags().BoolVarP(&networkRemoveForce, "force", "f", false, "remove even if containers are attached")

	networkCmd.AddCommand(networkListCmd)
	networkCmd.AddCommand(networkCreateCmd)
	networkCmd.AddCommand(networkRemoveCmd)
}
