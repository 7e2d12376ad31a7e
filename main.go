package main

import "conductor/cmd"

func main() {
	cmd.Execute()
}
