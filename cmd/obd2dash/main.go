package main

import "github.com/shaunagostinho/obd2dash/cmd/obd2dash/cmd"

func main() {
	cmd.Execute()
}
