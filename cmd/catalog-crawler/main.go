package main

import cmd "github.com/rohmanhakim/catalog-crawler/internal/cli"

func main() {
	cmd.Execute()
}
