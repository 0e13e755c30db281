// fring is a command line tool for creating and inspecting flashring partition images.
package main

import (
	"os"

	"github.com/gostonefire/flashring/cmd/fring/command"
	"github.com/spf13/cobra"
)

const (
	cliName        = "fring"
	cliDescription = "the command-line tool for flashring partition images"
)

var (
	rootCmd = &cobra.Command{
		Use:        cliName,
		Short:      cliDescription,
		SuggestFor: []string{"fring"},
	}
)

func init() {
	cobra.EnablePrefixMatching = true

	command.AddGlobalFlags(rootCmd)
	rootCmd.AddCommand(
		command.NewCreateCommand(),
		command.NewStatCommand(),
		command.NewPushCommand(),
		command.NewPeekCommand(),
		command.NewPopCommand(),
		command.NewResetCommand(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
