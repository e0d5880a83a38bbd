// Command galois runs the matching engine: durable sequencer, executor,
// RPC session protocol, HTTP/websocket query sidecar, and chain proof
// poller (whose submitter only logs each batch), wired together the way
// cmd/node wires its own components.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uinb/galois-go/internal/api"
	"github.com/uinb/galois-go/internal/chainclient"
	"github.com/uinb/galois-go/internal/clock"
	"github.com/uinb/galois-go/internal/command"
	"github.com/uinb/galois-go/internal/config"
	"github.com/uinb/galois-go/internal/engine"
	"github.com/uinb/galois-go/internal/logging"
	"github.com/uinb/galois-go/internal/rpc"
	"github.com/uinb/galois-go/internal/sequence"
	"github.com/uinb/galois-go/internal/snapshot"
	"github.com/uinb/galois-go/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to TOML config file")
	dryRun := flag.Uint64("dry-run", 0, "if non-zero, replay the whole log and exit, performing no snapshot or chain I/O; replay is not capped at this event id")
	flag.Parse()

	cfg, err := config.Load(*configPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logPath := os.Getenv("LOG_FILE")
	if logPath == "" {
		logPath = cfg.Server.DataHome + "/galois.log"
	}
	logger, err := logging.NewWithFile(logPath)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logger.Sync()

	store, err := storage.Open(cfg.Server.StoragePath())
	if err != nil {
		logger.Fatal("storage open failed", zap.Error(err))
	}
	defer store.Close()

	seq, err := sequence.Open(store)
	if err != nil {
		logger.Fatal("sequencer open failed", zap.Error(err))
	}

	eng := engine.New()
	if id, ok, err := snapshot.LatestId(cfg.Server.CoredumpPath()); err != nil {
		logger.Fatal("snapshot lookup failed", zap.Error(err))
	} else if ok {
		state, err := snapshot.Load(cfg.Server.CoredumpPath(), id)
		if err != nil {
			logger.Fatal("snapshot load failed", zap.Error(err))
		}
		if err := eng.ImportState(state); err != nil {
			logger.Fatal("snapshot import failed", zap.Error(err))
		}
		logger.Info("restored from snapshot", zap.Uint64("event_id", id))
	}

	driver := engine.NewDriver(seq, store, eng)
	bootTime := uint64(time.Now().UnixMilli())
	if err := driver.Recover(func(id uint64) uint64 { return bootTime }); err != nil {
		logger.Fatal("log replay failed", zap.Error(err))
	}
	logger.Info("recovered", zap.Uint64("current_event_id", eng.CurrentEventId()))

	if dryRunTarget := *dryRun; dryRunTarget > 0 {
		logger.Info("dry-run complete, exiting without serving", zap.Uint64("target_event_id", dryRunTarget))
		return
	}

	apiServer := api.NewServer(eng, logger)

	var rpcServer *rpc.Server
	handler := func(cmd command.Command) ([]byte, bool) {
		if cmd.IsInspection() {
			return handleInspection(eng, cmd)
		}
		outputs, err := driver.Submit(cmd, uint64(time.Now().UnixMilli()))
		if err != nil {
			var interrupted *engine.Interrupted
			if errors.As(err, &interrupted) {
				logger.Fatal("durable write failed, refusing to continue", zap.Error(err))
			}
			return marshalError(err), true
		}
		apiServer.PublishFills(cmd.Symbol, outputs)
		apiServer.PublishDepth(cmd.Symbol, 32)
		if rpcServer != nil && len(outputs) > 0 {
			payload, _ := json.Marshal(outputs)
			rpcServer.Broadcast(0, payload)
		}
		payload, _ := json.Marshal(outputs)
		return payload, false
	}

	rpcServer = rpc.NewServer(logger, handler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return rpcServer.Serve(cfg.Server.BindAddr) })
	group.Go(func() error { return apiServer.Start(cfg.Server.HTTPAddr) })

	if cfg.ChainNode.NodeURL != "" {
		poller := chainclient.NewPoller(store, chainclient.NopSubmitter{Log: logger}, logger, clock.Real{},
			cfg.ChainNode.ProofBatchLimit, 10*time.Second)
		group.Go(func() error { return poller.Run(gctx) })
	}

	group.Go(func() error { return snapshotLoop(gctx, eng, cfg.Server.CoredumpPath(), cfg.Sequence.FetchIntervalMs) })

	<-ctx.Done()
	logger.Info("shutdown signal received")
	if err := group.Wait(); err != nil && gctx.Err() == nil {
		logger.Error("component exited with error", zap.Error(err))
	}
}

// snapshotLoop dumps engine state on a fixed interval so recovery after
// a crash never has to replay the entire log from genesis.
func snapshotLoop(ctx context.Context, eng *engine.Engine, dir string, intervalMs uint64) error {
	if intervalMs == 0 {
		intervalMs = 60_000
	}
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			id := eng.CurrentEventId()
			if id == 0 {
				continue
			}
			if err := snapshot.Dump(dir, id, time.Now(), eng.ExportState()); err != nil && !os.IsExist(err) {
				return err
			}
		}
	}
}

func marshalError(err error) []byte {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return b
}
