package main

import "github.com/unkn0wn-root/swcache/cmd/swcache/cmd"

func main() {
	cmd.Execute()
}
