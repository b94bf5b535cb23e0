package main

import "github.com/scanhub-io/coordinator/cmd"

func main() {
	cmd.Execute()
}
