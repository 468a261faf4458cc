package main

import "github.com/pairtrader/statarb-cli/cmd"

func main() {
	cmd.Execute()
}
