package main

import "github.com/chrisdamba/urbansim/cmd"

func main() {
	cmd.Execute()
}
