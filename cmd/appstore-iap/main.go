// Package main is the entry point for the appstore-iap CLI.
package main

import (
	"os"

	"github.com/RaydowCharole/AppStoreIapScript/cmd/appstore-iap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
