package main

import (
	"os"

	"github.com/alexscott/userman/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
