// ./main.go
package main

import (
	"github.com/xkilldash9x/autologin-cli/cmd"
)

// main is the entry point for the autologin CLI.
func main() {
	cmd.Execute()
}
