package main

import (
	"log"

	"github.com/hooklinehq/hookline/cmd/hookctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
