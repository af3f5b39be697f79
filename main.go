package main

import "outreach/cmd"

func main() {
	cmd.Execute()
}
