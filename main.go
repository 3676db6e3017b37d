package main

import (
	"os"

	"github.com/fragmede/streakkeeper/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
