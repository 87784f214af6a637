package main

import "gamedeck/internal/cli"

func main() {
	cli.Execute()
}
