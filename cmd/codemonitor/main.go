package main

import (
	"errors"
	"log"
	"os"

	"github.com/naval-1647/CodeMonitor/cmd/internal/app"
)

func main() {
	if err := app.Run(os.Args[1:]); err != nil {
		if errors.Is(err, app.ErrUsage) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
