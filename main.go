package main

import "github.com/chaospilot/incident-console/cmd"

func main() {
	cmd.Execute()
}
