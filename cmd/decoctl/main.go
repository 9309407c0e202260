// Command decoctl is the operator CLI: it issues caller tokens, migrates the
// store and reads ledger event streams.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
