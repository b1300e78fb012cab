// cloudop rolls a stopped chain node back to an earlier height, moves its cloud backup
// pointer, and captures or restores offline backups of its data directory.
package main

import (
	"fmt"
	"os"

	"github.com/colorfulnotion/cloudop/operrors"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if name := operrors.GetErrorCodeWithName(err); name != "" {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(operrors.ExitCode(err))
	}
}
