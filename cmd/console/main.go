package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/pacenote_computer/internal/app"
	"github.com/relabs-tech/pacenote_computer/internal/config"
)

func main() {
	configPath := flag.String("config", "./pacenote_config.txt", "path to configuration file")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsole(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
