package main

import (
	"fmt"
	"os"

	"github.com/a1ezzz/wasp-backup/internal/backup"
	"github.com/a1ezzz/wasp-backup/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		if kind, ok := backup.KindOf(err); ok {
			fmt.Fprintf(os.Stderr, "error (%s): %v\n", kind, err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
