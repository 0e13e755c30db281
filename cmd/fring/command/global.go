package command

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/gostonefire/flashring"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	partitionName string
	recordSize    int64
	overwrite     bool
	recovery      bool
	debug         bool
)

// AddGlobalFlags - Registers the flags shared by all fring sub-commands on the root command
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&partitionName, "partition", "p", "", "name of the partition image")
	cmd.PersistentFlags().Int64VarP(&recordSize, "record-size", "r", 16, "fixed record size in bytes")
	cmd.PersistentFlags().BoolVar(&overwrite, "overwrite", false, "drop the oldest sector when pushing into a full ring")
	cmd.PersistentFlags().BoolVar(&recovery, "recovery", false, "when only one header is valid, scan for an orphaned record")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// cmdFailedf - Prints a failure message and terminates the tool
func cmdFailedf(cmd *cobra.Command, format string, a ...interface{}) {
	errStr := fmt.Sprintf(format, a...)
	color.Red("%s", errStr)
	os.Exit(1)
}

// newLogger - Returns a development logger when --debug is set, otherwise a no-op logger
func newLogger() *zap.Logger {
	if !debug {
		return zap.NewNop()
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}

	return logger
}

// mustOpenRing - Opens the partition image given by the global flags and mounts a ring
// buffer on it, terminating the tool on any failure
func mustOpenRing(cmd *cobra.Command) (*flashring.RingBuffer, flashring.RingInfo) {
	if partitionName == "" {
		cmdFailedf(cmd, "the --partition flag MUST be set")
	}

	rb, info, err := flashring.Open(partitionName, flashring.Config{
		RecordSize: recordSize,
		Overwrite:  overwrite,
		Recovery:   recovery,
		Logger:     newLogger(),
	})
	if err != nil {
		cmdFailedf(cmd, "mount partition %s failed: %s", partitionName, err)
	}

	return rb, info
}
