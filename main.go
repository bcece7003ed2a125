package main

import "github.com/olavph/builds/cmd"

func main() {
	cmd.Execute()
}
