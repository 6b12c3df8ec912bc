package main

import "gramwatch/internal/cli"

func main() {
	cli.Execute()
}
