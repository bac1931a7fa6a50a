package main

import "github.com/kozaktomas/archive-similarity/cmd"

func main() {
	cmd.Execute()
}
