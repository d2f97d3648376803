package main

import "github.com/audiolibrelab/xlrbridge/cmd"

func main() {
	cmd.Execute()
}
