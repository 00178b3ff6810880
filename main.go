package main

import "github.com/wingbywings/telegroup/cmd"

func main() {
	cmd.Execute()
}
