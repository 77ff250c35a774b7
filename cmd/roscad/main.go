package main

import (
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rosca/config"
	"rosca/core"
	"rosca/core/state"
	"rosca/crypto"
	"rosca/native/circle"
	"rosca/observability"
	"rosca/observability/logging"
	"rosca/rpc"
	"rosca/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ROSCA_ENV"))
	logger := logging.Setup("roscad", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("Failed to open state database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node := core.NewNode(state.NewManager(db))
	node.SetEmitter(observability.NewLogEmitter(logger))

	if err := ensureGenesis(node, cfg, logger); err != nil {
		logger.Error("Failed to apply circle genesis", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Starting metrics server", slog.String("addr", cfg.MetricsAddress))
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			logger.Error("Metrics server stopped", slog.Any("error", err))
		}
	}()

	server := rpc.NewServer(node)
	logger.Info("Starting JSON-RPC server", slog.String("addr", cfg.RPCAddress))
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("JSON-RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// ensureGenesis creates the configured circle on first boot and seeds the
// custodial vault reserve. A node serving an existing circle skips both.
func ensureGenesis(node *core.Node, cfg *config.Config, logger *slog.Logger) error {
	if _, err := node.GetCircle(); err == nil {
		return nil
	} else if !errors.Is(err, circle.ErrNotFound) {
		return err
	}
	if strings.TrimSpace(cfg.Circle.Owner) == "" {
		logger.Warn("No circle in state and no genesis owner configured; waiting for circle_create")
		return nil
	}
	owner, err := decodeGenesisAddress(cfg.Circle.Owner)
	if err != nil {
		return err
	}
	deposit, err := cfg.DepositAmount()
	if err != nil {
		return err
	}
	roster := make([][20]byte, 0, len(cfg.Circle.Roster))
	for _, entry := range cfg.Circle.Roster {
		member, err := decodeGenesisAddress(entry)
		if err != nil {
			return err
		}
		roster = append(roster, member)
	}
	circleCfg := circle.CircleConfig{
		Owner:             owner,
		Token:             strings.ToUpper(strings.TrimSpace(cfg.Circle.Token)),
		DepositAmount:     deposit,
		CycleIntervalSecs: cfg.Circle.CycleIntervalSecs,
		JoinDeadlineSecs:  cfg.Circle.JoinDeadlineSecs,
	}
	if _, err := node.CreateCircle(owner, circleCfg, roster); err != nil {
		return err
	}
	reserve, err := cfg.ReserveAmount()
	if err != nil {
		return err
	}
	if reserve.Sign() > 0 {
		if err := node.Mint(node.VaultAddress(), reserve); err != nil {
			return err
		}
		logger.Info("Seeded vault reserve", slog.String("amount", reserve.String()))
	}
	logger.Info("Created circle from genesis config", slog.String("owner", cfg.Circle.Owner))
	return nil
}

func decodeGenesisAddress(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}
