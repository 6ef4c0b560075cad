// The main package for the newsrelay executable.
package main

import (
	"github.com/pwieczorek/newsrelay/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
