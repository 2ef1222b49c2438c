// The main package for the refinery executable.
package main

import "github.com/JakeFAU/profile-refinery/cmd"

func main() {
	cmd.Execute()
}
