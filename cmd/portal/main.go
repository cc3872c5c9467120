package main

import "github.com/bolsa-empleo/portal/cmd/portal/cli"

func main() {
	cli.Execute()
}
