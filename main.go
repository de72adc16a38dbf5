package main

import (
	"github.com/BioHazard786/roommesh/cmd"
	"github.com/BioHazard786/roommesh/internal/logging"
)

func main() {
	logging.Init()
	cmd.Execute()
}
