package main

import "github.com/ktwin/mqtt-bridge/cmd"

func main() {
	cmd.Execute()
}
