// The main package for the sizewatch executable.
package main

import (
	"github.com/JakeFAU/sizewatch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
