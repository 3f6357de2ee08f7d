package main

import "go-workflow/internal/cli"

func main() {
	cli.Execute()
}
