package main

import "oddcert/internal/cli"

func main() {
	cli.Execute()
}
