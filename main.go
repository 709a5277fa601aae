package main

import "songcatalog/cmd"

func main() {
	cmd.Execute()
}
