package main

import "github.com/andresmejia3/facelookup/cmd"

func main() {
	cmd.Execute()
}
