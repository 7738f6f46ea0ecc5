// The main package for the equipment-crawler executable.
package main

import (
	"github.com/JakeFAU/equipment-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
