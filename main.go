package main

import (
	"flag"
	"log"

	"yashubustudio/tiler/internal/app"
)

func main() {
	configPath := flag.String("config", "", "Path to config.json (default: ./config.json)")
	flag.Parse()
	if err := app.Run(*configPath); err != nil {
		log.Fatalf("tiler: %v", err)
	}
}
