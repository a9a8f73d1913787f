package main

import "github.com/fakeyudi/scopecomms/cmd"

func main() {
	cmd.Execute()
}
