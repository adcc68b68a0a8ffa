package main

import "github.com/agentic-research/spherepack/cmd"

func main() {
	cmd.Execute()
}
