package main

import "github.com/MeKo-Tech/fabricarea/cmd/fabricarea/cmd"

func main() {
	cmd.Execute()
}
