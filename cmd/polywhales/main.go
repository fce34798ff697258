package main

import (
	"polywhales/internal/cli"
)

func main() {
	cli.Execute()
}
