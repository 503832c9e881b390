package main

import "github.com/AzielCF/az-wabot/cmd"

func main() {
	cmd.Execute()
}
