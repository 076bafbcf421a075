package main

import "github.com/strrl/brightspots/internal/cmd"

func main() {
	cmd.Execute()
}
