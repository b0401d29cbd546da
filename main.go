package main

import "github.com/jpibz/wbash/cmd"

func main() {
	cmd.Execute()
}
