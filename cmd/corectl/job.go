package main

import (
	"encoding/json"
	"fmt"

	"github.com/nexusshell/corectl/pkg/apiclient"
	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect jobs running on the daemon",
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "Count active jobs by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		rpcAddr, _ := cmd.Flags().GetString("rpc-addr")
		rc := apiclient.NewRPCClient(rpcAddr)
		raw, err := rc.Call("job.list", nil)
		if err != nil {
			return err
		}
		var byState map[string]int
		if err := json.Unmarshal(raw, &byState); err != nil {
			return err
		}
		for state, n := range byState {
			fmt.Printf("%s\t%d\n", state, n)
		}
		return nil
	},
}

func init() {
	jobListCmd.Flags().String("rpc-addr", "127.0.0.1:7890", "Daemon RPC address")
	jobCmd.AddCommand(jobListCmd)
}
