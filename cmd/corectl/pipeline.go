package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nexusshell/corectl/pkg/apiclient"
	"github.com/spf13/cobra"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run and inspect pipelines on the daemon",
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run <file.json>",
	Short: "Submit a pipeline definition file to the daemon and print its result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read pipeline definition: %w", err)
		}
		var def json.RawMessage = raw

		rpcAddr, _ := cmd.Flags().GetString("rpc-addr")
		rc := apiclient.NewRPCClient(rpcAddr)
		result, err := rc.Call("pipeline.run", def)
		if err != nil {
			return err
		}
		fmt.Println(string(result))
		return nil
	},
}

func init() {
	pipelineRunCmd.Flags().String("rpc-addr", "127.0.0.1:7890", "Daemon RPC address")
	pipelineCmd.AddCommand(pipelineRunCmd)
}
