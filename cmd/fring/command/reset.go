package command

import (
	"github.com/fatih/color"
	"github.com/gostonefire/flashring"
	"github.com/gostonefire/flashring/flashpart"
	"github.com/gostonefire/flashring/internal/conf"
	"github.com/spf13/cobra"
)

// NewResetCommand - Returns the sub-command that discards all records by erasing both header
// slots of a partition image and reinitialising an empty ring buffer
func NewResetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "discard all records and reinitialise the ring buffer",
		Run: func(cmd *cobra.Command, args []string) {
			if partitionName == "" {
				cmdFailedf(cmd, "the --partition flag MUST be set")
			}

			part, err := flashpart.OpenFilePartition(partitionName)
			if err != nil {
				cmdFailedf(cmd, "open partition image %s failed: %s", partitionName, err)
			}
			defer part.CloseFile()

			sectorSize := part.SectorSize()
			slotSectors := (conf.HeaderLength + sectorSize - 1) / sectorSize
			if err := part.EraseRange(0, 2*slotSectors*sectorSize); err != nil {
				cmdFailedf(cmd, "erase header slots failed: %s", err)
			}

			_, _, err = flashring.New(part, flashring.Config{
				RecordSize: recordSize,
				Logger:     newLogger(),
			})
			if err != nil {
				cmdFailedf(cmd, "reinitialise ring buffer failed: %s", err)
			}

			color.Green("ring buffer on %s reset", partitionName)
		},
	}
	return cmd
}
