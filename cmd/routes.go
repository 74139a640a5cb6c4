package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ktwin/mqtt-bridge/internal/bridge"
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the effective route table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		table, err := bridge.RoutesFromConfig(cfg.Bridge)
		if err != nil {
			return fmt.Errorf("route table: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tMETHOD\tPATH\tTOPIC\tQOS\tCLEAR_BODY\tLOG")
		for _, r := range table.Routes() {
			logMode := string(r.Log.Verbosity)
			if r.Log.Verbosity == bridge.VerbosityFull && r.Log.Multiline {
				logMode += "+multiline"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\t%s\n",
				r.Name, r.Method, r.Path, r.Topic, r.QoS, r.ClearBody, logMode)
		}
		return w.Flush()
	},
}
