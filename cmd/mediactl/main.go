package main

import (
	"log"
	"os"

	"mediactl/config"
	"mediactl/server"
)

func main() {
	cfg, err := config.Load(os.Getenv("MEDIACTL_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var app server.App
	app.Initialize(cfg)
	if err := app.Run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
