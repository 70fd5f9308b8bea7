package main

import (
	"os"

	"github.com/privylens/privylens/internal/cmd"
)

func main() {
	os.Exit(cmd.Main())
}
