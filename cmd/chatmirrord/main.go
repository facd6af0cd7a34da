package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/dmelari/chatmirror/internal/daemon"
	"github.com/dmelari/chatmirror/internal/profile"
)

var version = "dev"

func main() {
	var profileFlag string

	root := &cobra.Command{
		Use:   "chatmirrord",
		Short: "Local mirror daemon for the marketplace messenger",
		RunE: func(cmd *cobra.Command, args []string) error {
			name := profile.Resolve(profileFlag)
			if err := profile.ValidateName(name); err != nil {
				return err
			}
			app := fx.New(
				daemon.Module(daemon.Params{ProfileName: name}),
			)
			app.Run()
			return nil
		},
	}
	root.Flags().StringVarP(&profileFlag, "profile", "p", "", "profile name (overrides config default)")
	root.SilenceUsage = true

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
