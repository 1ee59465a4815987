package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the executor config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		mode := "pvc"
		if cfg.DagsVolumeClaim == "" {
			mode = "git-sync"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config ok: namespace=%s image=%s dags=%s mode=%s\n",
			cfg.Namespace, cfg.ContainerImage, cfg.DagsFolder, mode)
		return nil
	},
}
