package main

import (
	"github.com/bmartynov/nats-codec/cmd"
)

func main() {
	cmd.Execute()
}
