package main

import "github.com/tinychat-dev/tinychat/cmd"

func main() {
	cmd.Execute()
}
