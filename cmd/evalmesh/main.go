// Command evalmesh runs evaluation suites described in YAML files and
// inspects persisted runs.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
