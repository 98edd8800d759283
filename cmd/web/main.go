package main

import (
	"github.com/rs/zerolog/log"

	"bingohall/internal/server"
)

func main() {
	if err := server.Run(); err != nil {
		log.Fatal().Err(err).Msg("Server exited")
	}
}
