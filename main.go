package main

import "github.com/pders01/confhist/cmd"

func main() {
	cmd.Execute()
}
