package main

import "github.com/cobliteam/shelver/internal/cli"

func main() {
	cli.Execute()
}
