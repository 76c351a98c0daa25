package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the API is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := headless()
		if err != nil {
			return err
		}
		defer svc.Close()

		res := svc.client.Ping(cmd.Context())
		switch {
		case res.Healthy:
			fmt.Printf("%s is up (%s)\n", svc.client.BaseURL(), res.Latency.Round(time.Millisecond))
			return nil
		case res.Reachable:
			return fmt.Errorf("%s answered but is unhealthy: %s", svc.client.BaseURL(), res.Error)
		default:
			return fmt.Errorf("%s is unreachable: %s", svc.client.BaseURL(), res.Error)
		}
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
