package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/spigell/tener-recruiter/cmd"
)

func main() {
	// .env is optional; real deployments pass the environment directly.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
