package main

import "github.com/embeddenator/puppetgate/internal/cli"

func main() {
	cli.Execute()
}
