// Command pimgr manages a Pi-hole appliance.
package main

import (
	"fmt"
	"os"

	"github.com/pihole-manager/pimgr/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
