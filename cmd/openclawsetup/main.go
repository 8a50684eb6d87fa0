package main

import (
	"os"

	"openclawsetup/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
