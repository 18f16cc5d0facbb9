package main

import "github.com/quorumcontrol/ownable/cmd"

func main() {
	cmd.Execute()
}
