package main

import "github.com/Bullish-Design/discordia/cmd"

func main() {
	cmd.Execute()
}
