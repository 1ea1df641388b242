// Command leaseq runs and inspects LeaseQ work queues.
//
// Usage:
//
//	leaseq demo     [--config path] [--items n] [--admin] [--archive]
//	leaseq serve    [--config path]
//	leaseq inspect  [queue] [--addr url] [--part main|timeout|locks] [--follow]
//	leaseq history  [queue] [--path archive.db] [--id snapshot]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "leaseq: %v\n", err)
		}
		os.Exit(1)
	}
}
