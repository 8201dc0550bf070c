package main

import (
	"os"

	"github.com/hanyuliu/simlearn/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
