package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/sensorlog/internal/platform"
)

// pathsCmd represents the paths command
var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "List the measurement paths the agent can record or stream",
	RunE:  runPaths,
}

func runPaths(cmd *cobra.Command, args []string) error {
	broker := platform.NewSimBroker(platform.SinkFunc(func(platform.Event) {}), nil)
	defer broker.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tFRAME ID\tINTERVAL\tRECORD BYTES")
	for _, path := range broker.KnownPaths() {
		spec, ok := broker.Spec(path)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%#04x\t%s\t%d\n", path, spec.FrameID, spec.Interval, spec.RecordLen)
	}
	return w.Flush()
}
