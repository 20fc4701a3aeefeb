package main

import "github.com/underbots/ipcbus/cmd/busctl/cmd"

func main() {
	cmd.Execute()
}
