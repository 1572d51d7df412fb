package main

import (
	"log"

	"github.com/genc-murat/tactilesql-scheduler/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatalf("could not start application: %v", err)
	}
}
