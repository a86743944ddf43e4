package main

import "github.com/lromero/chatvault/cmd"

func main() {
	cmd.Execute()
}
