package main

import "github.com/pgforge/migrate/internal/cli"

func main() {
	cli.Execute()
}
