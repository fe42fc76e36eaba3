package main

import "stockpos/internal/cli"

func main() {
	cli.Execute()
}
