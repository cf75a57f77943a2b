// hkmacro - hotkey triggered keyboard and mouse macros
package main

import (
	"fmt"
	"os"

	"hkmacro/internal/cli"
)

var version = "0.3.0"

func main() {
	if err := cli.RootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
