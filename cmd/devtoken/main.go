// Command devtoken prints a session token for a user id, for exercising
// the API and websocket locally.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/npezzotti/go-gigchat/internal/api"
	"github.com/npezzotti/go-gigchat/internal/config"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})

	env, err := config.LoadEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("env")
	}
	env.ApplyDevelopmentDefaults()

	var (
		userId string
		exp    time.Duration
	)
	flag.StringVar(&userId, "user", "", "user id to issue the token for")
	flag.StringVar(&env.SigningKey, "signing-key", env.SigningKey, "base64 encoded signing key")
	flag.DurationVar(&exp, "exp", api.DefaultTokenExp, "token lifetime")
	flag.Parse()

	if userId == "" {
		logger.Fatal().Msg("-user is required")
	}

	cfg, err := config.NewConfig(env)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	token, err := api.CreateToken(cfg.SigningKey, userId, exp)
	if err != nil {
		logger.Fatal().Err(err).Msg("sign token")
	}

	fmt.Println(token)
}
