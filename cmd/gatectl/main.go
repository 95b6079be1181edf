package main

import "github.com/zgramming/cmsgate/cmd/gatectl/cmd"

func main() {
	cmd.Execute()
}
