package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/oracle"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/config"
	"github.com/layer-3/walletauth/service"
	transporthttp "github.com/layer-3/walletauth/transport/http"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	signKey, err := loadSigningKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("Failed to load signing key: %v", err)
	}

	// Postgres holds nonces, identities and the attempt trail.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pool.Close()

	pgStore := store.NewPostgresStore(pool)
	if err := pgStore.Migrate(ctx); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	// Expired nonces pile up forever without a sweeper.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			n, err := pgStore.DeleteExpiredNonces(ctx)
			if err != nil {
				logger.Warn("nonce cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("deleted expired nonces", "count", n)
			}
		}
	}()

	// Redis backs revocation and the event stream.
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	wmLogger := watermill.NewStdLogger(false, false)
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: redisClient},
		wmLogger,
	)
	if err != nil {
		log.Fatalf("Failed to create Redis publisher: %v", err)
	}

	// The chain node is a read-only oracle.
	rpcClient, err := rpc.DialContext(ctx, cfg.EthRPCURL)
	if err != nil {
		log.Fatalf("Failed to dial Ethereum node: %v", err)
	}
	defer rpcClient.Close()

	authService := service.NewAuthService(
		service.Config{
			Domain:          cfg.AuthDomain,
			ChainID:         cfg.ChainID,
			NonceTTL:        cfg.NonceTTL,
			FreshnessWindow: cfg.FreshnessWindow,
		},
		pgStore, // nonces
		pgStore, // identities
		pgStore, // attempts
		store.NewRedisRevocationStore(redisClient),
		tokenizer.NewJWTTokenizer(signKey),
		oracle.NewEthOracle(rpcClient, cfg.OracleTimeout),
		events.NewWatermillPublisher(publisher),
		logger,
	)

	router := transporthttp.SetupRouter(authService)

	logger.Info("starting server", "addr", cfg.ListenAddr, "domain", cfg.AuthDomain, "chain_id", cfg.ChainID)
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// loadSigningKey parses a PEM EC private key, or generates an ephemeral one
// when the config is empty.
func loadSigningKey(pemKey string) (*ecdsa.PrivateKey, error) {
	if pemKey == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, errors.New("no PEM block in JWT_PRIVATE_KEY")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}
