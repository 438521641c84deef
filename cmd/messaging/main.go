package main

import "github.com/oksasatya/messaging-system/cmd/messaging/commands"

func main() {
	commands.Execute()
}
