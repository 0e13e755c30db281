package command

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewStatCommand - Returns the sub-command that mounts a partition image and prints the
// ring buffer geometry and state
func NewStatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stat",
		Short: "show geometry and state of a ring buffer",
		Run: func(cmd *cobra.Command, args []string) {
			rb, info := mustOpenRing(cmd)
			defer rb.CloseFiles()

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Property", "Value"})
			t.AppendRows([]table.Row{
				{"PartitionSize", info.PartitionSize},
				{"SectorSize", info.SectorSize},
				{"DataSectors", info.DataSectors},
				{"RecordSize", recordSize},
				{"RecordsPerSector", info.RecordsPerSector},
				{"MaxRecords", info.MaxRecords},
				{"RecordNum", rb.RecordNum()},
			})
			t.Render()
		},
	}
	return cmd
}
