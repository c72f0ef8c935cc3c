package main

import "github.com/NamanBalaji/mmsdl/cmd"

func main() {
	cmd.Execute()
}
