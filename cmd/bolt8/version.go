package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/pzverkov/bolt8/pkg/crypto"
	"github.com/pzverkov/bolt8/pkg/metrics"
	pkgversion "github.com/pzverkov/bolt8/pkg/version"
)

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "bolt8 version %s\n", getVersion())
			if buildTime != "unknown" {
				fmt.Fprintf(out, "Built: %s\n", buildTime)
			}
			commit := gitCommit
			if commit == "unknown" {
				commit = pkgversion.Commit()
			}
			if commit != "" {
				fmt.Fprintf(out, "Commit: %s\n", commit)
			}
			fmt.Fprintf(out, "Protocol: %s\n", pkgversion.Protocol)
			fmt.Fprintf(out, "Go: %s\n", runtime.Version())
			fmt.Fprintf(out, "OpenTelemetry: %t\n", metrics.OTelEnabled())

			selfTest := "passed"
			if !crypto.SelfTestPassed() {
				selfTest = "FAILED"
			}
			fmt.Fprintf(out, "Crypto self-test: %s\n", selfTest)
		},
	}
}
