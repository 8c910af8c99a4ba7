package main

import (
	"github.com/velocitycareerlabs/data-loader/cmd"
)

func main() {
	cmd.Execute()
}
