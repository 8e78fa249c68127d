// Command certmap runs the extraction and mapping stages on local files
// without a server or database.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
