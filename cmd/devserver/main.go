package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/narrate/internal/devserver"
	"github.com/dmitrijs2005/narrate/internal/devserver/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	app := devserver.NewApp(cfg)
	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}
