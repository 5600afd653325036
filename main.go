package main

import (
	"fmt"
	"os"

	"github.com/userdesk/userdesk/cli"
)

func main() {
	cmd := cli.RootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "userdesk: %s\n", err)
		os.Exit(1)
	}
}
