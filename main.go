package main

import (
	"github.com/sidkik/cacs/cmd"
	"github.com/sidkik/cacs/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
