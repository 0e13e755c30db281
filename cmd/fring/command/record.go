package command

import (
	"encoding/hex"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var pushData string

// NewPushCommand - Returns the sub-command that appends one record to the ring buffer
func NewPushCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "append one record to the ring buffer",
		Run: func(cmd *cobra.Command, args []string) {
			payload, err := hex.DecodeString(pushData)
			if err != nil {
				cmdFailedf(cmd, "the --data flag is not valid hex: %s", err)
			}
			if int64(len(payload)) != recordSize {
				cmdFailedf(cmd, "decoded payload is %d bytes, the record size is %d", len(payload), recordSize)
			}

			rb, _ := mustOpenRing(cmd)
			defer rb.CloseFiles()

			if err := rb.PushBack(payload); err != nil {
				cmdFailedf(cmd, "push failed: %s", err)
			}

			color.Green("pushed 1 record, %d in buffer", rb.RecordNum())
		},
	}
	cmd.Flags().StringVar(&pushData, "data", "", "record payload as a hex string of exactly record-size bytes")
	return cmd
}

// NewPeekCommand - Returns the sub-command that reads the oldest record without removing it
func NewPeekCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peek",
		Short: "read the oldest record without removing it",
		Run: func(cmd *cobra.Command, args []string) {
			rb, _ := mustOpenRing(cmd)
			defer rb.CloseFiles()

			payload := make([]byte, recordSize)
			if err := rb.PeekFront(payload); err != nil {
				cmdFailedf(cmd, "peek failed: %s", err)
			}

			color.Green("%s", hex.EncodeToString(payload))
		},
	}
	return cmd
}

// NewPopCommand - Returns the sub-command that reads and removes the oldest record
func NewPopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pop",
		Short: "read and remove the oldest record",
		Run: func(cmd *cobra.Command, args []string) {
			rb, _ := mustOpenRing(cmd)
			defer rb.CloseFiles()

			payload := make([]byte, recordSize)
			if err := rb.PopFront(payload); err != nil {
				cmdFailedf(cmd, "pop failed: %s", err)
			}

			color.Green("%s", hex.EncodeToString(payload))
		},
	}
	return cmd
}
