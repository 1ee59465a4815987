// kubexec runs the Kubernetes task executor standalone and ships small
// operational helpers around it.
package main

import (
	"flag"
	"os"

	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(flag.CommandLine)
	defer klog.Flush()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
