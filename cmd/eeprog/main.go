package main

import "github.com/OpenTraceLab/eeprog/cmd/eeprog/cmd"

func main() {
	cmd.Execute()
}
