package main

import "github.com/frahmantamala/fleet-approval/cmd"

func main() {
	cmd.Execute()
}
