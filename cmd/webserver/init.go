package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gotcp/webserver/internal/config"
)

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			written, err := config.WriteDefault(path, force)
			if err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", written)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}
