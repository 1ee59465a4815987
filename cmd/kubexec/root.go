package main

import (
	"github.com/spf13/cobra"

	"github.com/skedops/kubexec"
	"github.com/skedops/kubexec/config"
)

var (
	configPath string
	namespace  string
)

var rootCmd = &cobra.Command{
	Use:           "kubexec",
	Short:         "Dispatch workflow tasks as worker pods on a Kubernetes cluster",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "airflow.toml", "path to the executor config file")
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "namespace override (defaults to the configured one)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(setupRBACCmd)
	rootCmd.AddCommand(logsCmd)
}

// loadConfig reads the config file and applies the namespace override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if namespace != "" {
		cfg.Namespace = namespace
	}
	return cfg, nil
}

func newClientset(cfg *config.Config) (*kubexec.Clientset, error) {
	return kubexec.NewClientset(cfg.Namespace)
}
