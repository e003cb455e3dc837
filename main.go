package main

import "xololegend-market/internal/cli"

func main() {
	cli.Execute()
}
