package main

import "tipbot-core/cmd/tipbot-cli/cmd"

func main() {
	cmd.Execute()
}
