// Command closet manages garment collections from the command line.
package main

import "github.com/mesh-intelligence/closet/internal/cli"

func main() {
	cli.Execute()
}
