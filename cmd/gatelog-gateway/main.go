package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/davidahmann/gatelog/internal/api"
	"github.com/davidahmann/gatelog/internal/audit"
	"github.com/davidahmann/gatelog/internal/audit/pgstore"
	"github.com/davidahmann/gatelog/internal/audit/sqlstore"
	"github.com/davidahmann/gatelog/internal/auth"
	"github.com/davidahmann/gatelog/internal/config"
	"github.com/davidahmann/gatelog/internal/crypto"
	"github.com/davidahmann/gatelog/internal/logging"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

func newServer(addr string, cfg config.Config) (*http.Server, error) {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	var signer audit.Signer
	opts := api.ServiceOptions{
		RulesPath:           cfg.RulesPath,
		Store:               store,
		RedactionMarker:     cfg.Redaction.Marker,
		MinJustificationLen: cfg.Override.MinJustificationLen,
		Log:                 logger,
	}
	if cfg.SigningKey.PrivateKeyPath != "" {
		priv, pub, err := crypto.LoadEd25519PrivateKey(cfg.SigningKey.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("signing key: %w", err)
		}
		signer = audit.NewKeySigner(cfg.SigningKey.KeyID, priv)
		opts.Signer = signer
		opts.PublicKey = pub
	}

	service, err := api.NewGovernService(opts)
	if err != nil {
		return nil, err
	}

	h := &api.Handler{
		Auth:    auth.NewAuthenticatorFromEnv(),
		Service: service,
	}
	return &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}, nil
}

func openStore(cfg config.Config) (audit.Store, error) {
	switch cfg.DB.Driver {
	case "", "memory":
		return audit.NewInMemoryStore(), nil
	case "sqlite":
		s, err := sqlstore.OpenSQLite(cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := s.Migrate(); err != nil {
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := pgstore.OpenPostgres(cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := s.Migrate(); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported db driver: %q", cfg.DB.Driver)
	}
}

type envFn func(string) string
type listenFn func(*http.Server) error
type serverFactory func(addr string, cfg config.Config) (*http.Server, error)

func run(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	fs := flag.NewFlagSet("gatelog-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to gatelog config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = getenv("GATELOG_CONFIG_PATH")
	}

	var cfg config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	addr := firstNonEmpty(getenv("GATELOG_LISTEN_ADDR"), cfg.ListenAddr, ":8080")
	cfg.RulesPath = firstNonEmpty(getenv("GATELOG_RULES_PATH"), cfg.RulesPath, "rules/gatelog.yaml")

	server, err := factory(addr, cfg)
	if err != nil {
		return err
	}

	log.Printf("gatelog-gateway listening on %s", addr)
	if err := listen(server); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
