package main

import (
	"flag"
	"log"

	"github.com/simp-lee/crmdesk/internal/app"
	"github.com/simp-lee/crmdesk/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/crmstub.yaml", "path to configuration file")
	envPath := flag.String("env", ".env", "optional .env file loaded into the environment")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		log.Fatal("failed to load env file: ", err)
	}

	cfg, err := config.LoadStub(*configPath)
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	a, err := app.NewStub(cfg)
	if err != nil {
		log.Fatal("failed to create stub: ", err)
	}

	if err := a.Run(); err != nil {
		log.Fatal("server error: ", err)
	}
}
