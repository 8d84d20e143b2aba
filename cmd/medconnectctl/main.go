package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sumithjoshi99/medconnect/internal/ctl"
)

func main() {
	if err := ctl.Execute(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(ctl.ExitCode(err))
	}
}
