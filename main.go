package main

import "github.com/northcutted/drvscan/cmd"

func main() {
	cmd.Execute()
}
