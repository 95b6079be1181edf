package main

import "github.com/zgramming/cmsgate/cmd/gateapi/cmd"

func main() {
	cmd.Execute()
}
