package main

import "github.com/orizon-lang/iropt/internal/cli"

func main() {
	cli.Execute()
}
