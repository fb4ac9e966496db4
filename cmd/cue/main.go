package main

import "github.com/MeKo-Tech/cue/internal/cmd"

func main() {
	cmd.Execute()
}
