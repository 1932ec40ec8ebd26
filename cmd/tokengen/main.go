// Command tokengen mints a service token the game server presents to the
// relay instead of a Discord access token.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"borerelay/internal/core/services"
	"borerelay/pkg/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	name := flag.String("name", "game-server", "service name recorded in the token")
	ttl := flag.Duration("ttl", 0, "token lifetime, overriding service_auth.token_ttl (0 keeps the configured value)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	lifetime := cfg.ServiceAuth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	issuer := services.NewServiceTokenIssuer(cfg.ServiceAuth.JWTSecret, cfg.ServiceAuth.Issuer, lifetime)
	token, err := issuer.Mint(*name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to mint token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	if lifetime > 0 {
		fmt.Fprintf(os.Stderr, "expires at %s\n", time.Now().Add(lifetime).UTC().Format(time.RFC3339))
	}
}
