package main

import "lnstats/internal/cli"

func main() {
	cli.Execute()
}
