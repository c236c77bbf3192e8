package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	verifymind "github.com/verifymind/verifymind-go-sdk"
	"github.com/verifymind/verifymind-go-sdk/pkg/chain"
	"github.com/verifymind/verifymind-go-sdk/pkg/server"
)

func main() {
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	port := 8080
	if raw := strings.TrimSpace(os.Getenv("PORT")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			log.Fatal().Str("port", raw).Msg("invalid PORT")
		}
		port = n
	}

	client, err := verifymind.NewClientE()
	if err != nil {
		log.Fatal().Err(err).Msg("sdk init failed")
	}

	cfg := server.Config{
		Port:     port,
		Log:      log,
		Oracle:   client.Oracle,
		Attestor: client.Attestor,
	}

	// Chain submission is enabled only when all three of PRIVATE_KEY,
	// RPC_URL, and VAULT_ADDRESS are present; otherwise the server runs
	// price and attestation endpoints only.
	pk := strings.TrimSpace(os.Getenv("PRIVATE_KEY"))
	rpcURL := strings.TrimSpace(os.Getenv("RPC_URL"))
	vault := strings.TrimSpace(os.Getenv("VAULT_ADDRESS"))
	if pk != "" && rpcURL != "" && vault != "" {
		chainID, err := strconv.ParseInt(strings.TrimSpace(os.Getenv("CHAIN_ID")), 10, 64)
		if err != nil || chainID <= 0 {
			log.Fatal().Msg("missing or invalid CHAIN_ID")
		}
		if !common.IsHexAddress(vault) {
			log.Fatal().Str("vault", vault).Msg("invalid VAULT_ADDRESS")
		}
		signer, err := chain.NewPrivateKeySigner(pk, chainID)
		if err != nil {
			log.Fatal().Err(err).Msg("create signer failed")
		}
		backend, err := ethclient.Dial(rpcURL)
		if err != nil {
			log.Fatal().Err(err).Msg("dial rpc failed")
		}
		defer backend.Close()

		cfg.Chain = chain.NewClient(backend, signer, chain.DefaultConfig())
		cfg.Vault = common.HexToAddress(vault)
		log.Info().Str("signer", signer.Address().Hex()).Str("vault", vault).Msg("chain submission enabled")
	} else {
		log.Warn().Msg("chain submission disabled; set PRIVATE_KEY, RPC_URL and VAULT_ADDRESS to enable")
	}

	srv := server.New(cfg)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-done
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server exited")
	}
}
