package main

import "github.com/thypress/thypress/cmd"

func main() {
	cmd.Execute()
}
