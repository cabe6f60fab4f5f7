package main

import (
	"os"

	"agendei/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
