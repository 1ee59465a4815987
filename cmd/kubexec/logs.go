package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skedops/kubexec"
)

var followLogs bool

var logsCmd = &cobra.Command{
	Use:   "logs <pod>",
	Short: "Print the logs of a worker pod",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		clientset, err := newClientset(cfg)
		if err != nil {
			return err
		}

		podName := args[0]
		logsCh := make(chan kubexec.LogLine, 100)

		errCh := make(chan error, 1)
		go func() {
			errCh <- clientset.GetOrTailLogs(cmd.Context(), cfg.Namespace, podName, logsCh, followLogs)
		}()

		for line := range logsCh {
			fmt.Fprintf(cmd.OutOrStdout(), "%s | %s", line.Timestamp.Format("2006-01-02 15:04:05 MST"), line.Line)
		}
		return <-errCh
	},
}

func init() {
	logsCmd.Flags().BoolVarP(&followLogs, "follow", "f", false, "follow the log stream")
}
