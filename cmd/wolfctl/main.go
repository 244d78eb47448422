package main

import "github.com/mcoot/wolfbot/internal/cli"

func main() {
	cli.Execute()
}
