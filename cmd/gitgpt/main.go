package main

import "github.com/gitgpt/gitgpt/internal/cli"

func main() {
	cli.Execute()
}
