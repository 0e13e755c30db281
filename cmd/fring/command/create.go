package command

import (
	"github.com/fatih/color"
	"github.com/gostonefire/flashring"
	"github.com/gostonefire/flashring/flashpart"
	"github.com/spf13/cobra"
)

var (
	sectorSize    int64
	partitionSize int64
)

// NewCreateCommand - Returns the sub-command that creates a new partition image and
// initialises an empty ring buffer on it
func NewCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "create a new partition image with an empty ring buffer",
		Run: func(cmd *cobra.Command, args []string) {
			if partitionName == "" {
				cmdFailedf(cmd, "the --partition flag MUST be set")
			}

			part, err := flashpart.CreateFilePartition(flashpart.FileConf{
				Name:          partitionName,
				SectorSize:    sectorSize,
				PartitionSize: partitionSize,
			})
			if err != nil {
				cmdFailedf(cmd, "create partition image %s failed: %s", partitionName, err)
			}
			defer part.CloseFile()

			_, info, err := flashring.New(part, flashring.Config{
				RecordSize: recordSize,
				Logger:     newLogger(),
			})
			if err != nil {
				cmdFailedf(cmd, "initialise ring buffer on %s failed: %s", partitionName, err)
			}

			color.Green("created partition image %s, capacity %d records of %d bytes",
				flashpart.GetImageFileName(partitionName), info.MaxRecords, recordSize)
		},
	}
	cmd.Flags().Int64Var(&sectorSize, "sector-size", 4096, "emulated flash sector size in bytes")
	cmd.Flags().Int64Var(&partitionSize, "size", 32768, "emulated partition size in bytes")
	return cmd
}
