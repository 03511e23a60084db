package main

import "github.com/pixeldraw/pixelhub/internal/cli/cmd"

func main() {
	cmd.Execute()
}
