// Package main is the entry point for the lmsclient demo CLI: a small
// program that wires a Frame Transport, the auth handshake collaborator,
// and a Schema Registry of illustrative endpoints into a running Client
// Port, to exercise the full client lifecycle end to end.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/AsherBond/lmstudio-go/internal/auth"
	"github.com/AsherBond/lmstudio-go/internal/buildinfo"
	"github.com/AsherBond/lmstudio-go/internal/config"
	"github.com/AsherBond/lmstudio-go/internal/debugserver"
	"github.com/AsherBond/lmstudio-go/internal/port"
	"github.com/AsherBond/lmstudio-go/internal/schema"
	"github.com/AsherBond/lmstudio-go/internal/wire"
	"github.com/AsherBond/lmstudio-go/transport"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() > 0 && flag.Arg(0) == "version" {
		fmt.Println(buildinfo.String())
		return
	}

	if err := run(logger, *configPath); err != nil {
		logger.Error("lmsclient exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	if level, err := config.ParseLogLevel(cfg.LogLevel); err == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}
	logger.Info("lmsclient starting", "version", buildinfo.Version, "transport", cfg.Server.Transport)

	passkeyPath := expandHome(os.ExpandEnv(cfg.Auth.PasskeyFile))
	passkey, generated, err := auth.LoadOrCreatePasskey(passkeyPath)
	if err != nil {
		return fmt.Errorf("passkey: %w", err)
	}
	if generated {
		logger.Info("generated a new passkey; scan the pairing code to authorize this client", "path", passkeyPath)
		_ = auth.PrintPairingQR(os.Stdout, cfg.Auth.ClientIdentifier, passkey)
	}

	factory, err := dialFactory(cfg, passkey, logger)
	if err != nil {
		return fmt.Errorf("dial %s transport: %w", cfg.Server.Transport, err)
	}

	registry, err := buildRegistry()
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	p := port.New(registry, factory, port.Options{
		Logger:        logger,
		VerboseErrors: cfg.VerboseErrs,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var debug *debugserver.Server
	if cfg.DebugServer.Enabled {
		debug = debugserver.New(cfg.DebugServer.Listen, p, logger)
		go func() {
			if err := debug.Start(ctx); err != nil {
				logger.Error("debug server failed", "error", err)
			}
		}()
	}

	runDemo(ctx, p, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	cancel()
	if debug != nil {
		_ = debug.Shutdown(context.Background())
	}
	return nil
}

// expandHome replaces a leading "~" with the user's home directory, the
// one shell expansion os.ExpandEnv doesn't already perform.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// dialFactory constructs the configured Frame Transport's port.Factory.
// For the ipc transport, the auth handshake (§6.3) runs over the raw
// connection before it is handed to the port. The mqtt transport
// authenticates to its broker with the client identifier and passkey as
// username/password instead; the websocket transport dials a plain ws://
// URL and sends no credentials.
func dialFactory(cfg *config.Config, passkey string, logger *slog.Logger) (port.Factory, error) {
	switch cfg.Server.Transport {
	case "websocket":
		url := fmt.Sprintf("ws://%s:%d%s", cfg.Server.Host, cfg.Server.Port, cfg.Server.Path)
		return transport.DialWebSocket(context.Background(), transport.WebSocketConfig{
			URL:      url,
			ProxyURL: cfg.Server.ProxyURL,
			Logger:   logger,
		})

	case "ipc":
		conn, err := net.Dial("unix", cfg.Server.Socket)
		if err != nil {
			return nil, fmt.Errorf("dial socket %s: %w", cfg.Server.Socket, err)
		}
		// One reader for the whole connection lifetime: the handshake
		// response and the first protocol frames can arrive back to
		// back, and a second bufio.Reader wrapped around conn later
		// would drop whatever this one already buffered past the
		// handshake response's newline.
		reader := bufio.NewReaderSize(conn, 1<<20)
		if err := auth.Perform(conn, reader, cfg.Auth.ClientIdentifier, passkey, logger); err != nil {
			conn.Close()
			return nil, fmt.Errorf("auth handshake: %w", err)
		}
		return transport.NewIPC(conn, transport.IPCConfig{Logger: logger, Reader: reader}), nil

	case "mqtt":
		return transport.DialMQTT(context.Background(), transport.MQTTConfig{
			Broker:    cfg.Server.Broker,
			Username:  cfg.Auth.ClientIdentifier,
			Password:  passkey,
			Prefix:    "lmstudio",
			SessionID: cfg.Auth.ClientIdentifier,
			Logger:    logger,
		})

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Server.Transport)
	}
}

// EchoParams is the echo rpc's parameter.
type EchoParams struct {
	Message string `json:"message" validate:"required"`
}

// EchoResult is the echo rpc's return value.
type EchoResult struct {
	Message string `json:"message"`
}

// ChatMessage is both directions' packet shape on the chat channel.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams creates a chat channel.
type ChatParams struct {
	ConversationID string `json:"conversationId"`
}

// DownloadProgress is downloadProgress's signal data.
type DownloadProgress struct {
	BytesDownloaded int64 `json:"bytesDownloaded"`
	TotalBytes      int64 `json:"totalBytes"`
}

// ActiveModel is activeModel's writable signal data.
type ActiveModel struct {
	ModelID string `json:"modelId"`
}

func buildRegistry() (*schema.Registry, error) {
	registry := schema.NewRegistry()

	if err := registry.AddRPCEndpoint("echo", schema.For[EchoParams](), schema.For[EchoResult]()); err != nil {
		return nil, err
	}
	if err := registry.AddChannelEndpoint("chat", schema.For[ChatParams](), schema.For[ChatMessage](), schema.For[ChatMessage]()); err != nil {
		return nil, err
	}
	if err := registry.AddSignalEndpoint("downloadProgress", schema.For[struct{}](), schema.For[DownloadProgress]()); err != nil {
		return nil, err
	}
	if err := registry.AddWritableSignalEndpoint("activeModel", schema.For[struct{}](), schema.For[ActiveModel]()); err != nil {
		return nil, err
	}

	return registry, nil
}

// runDemo exercises the full lifecycle named in the spec over the four
// registered endpoints. Each call logs its outcome rather than failing
// the process; a demo client run against a server that doesn't
// implement one of these endpoints should still show the rest working.
func runDemo(ctx context.Context, p *port.Port, logger *slog.Logger) {
	result, err := port.CallRPC[EchoParams, EchoResult](p, "echo", EchoParams{Message: "hello"}, "")
	if err != nil {
		logger.Warn("echo rpc failed", "error", err)
	} else {
		logger.Info("echo rpc returned", "message", result.Message)
	}

	conversationID := uuid.Must(uuid.NewV7()).String()
	ch, err := port.CreateChannel(p, "chat", ChatParams{ConversationID: conversationID}, func(raw json.RawMessage) {
		logger.Info("chat message received", "raw", string(raw))
	}, "")
	if err != nil {
		logger.Warn("chat channel creation failed", "error", err)
	} else {
		ch.OnClose(func() { logger.Info("chat channel closed") })
		ch.OnError(func(err error) { logger.Warn("chat channel errored", "error", err) })

		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := ch.Send(sendCtx, ChatMessage{Role: "user", Content: "hi there"}); err != nil {
			logger.Warn("chat send failed", "error", err)
		}
		cancel()
	}

	progress, err := port.CreateSignal[DownloadProgress](p, "downloadProgress", struct{}{}, "")
	if err != nil {
		logger.Warn("downloadProgress signal creation failed", "error", err)
	} else {
		progress.Subscribe(func(v DownloadProgress, _ []wire.WriteTag) {
			logger.Info("download progress", "downloaded", v.BytesDownloaded, "total", v.TotalBytes)
		}, func(err error) {
			logger.Warn("downloadProgress signal errored", "error", err)
		})
	}

	activeModel, setter, err := port.CreateWritableSignal[ActiveModel](p, "activeModel", struct{}{}, "")
	if err != nil {
		logger.Warn("activeModel signal creation failed", "error", err)
		return
	}
	activeModel.Subscribe(func(v ActiveModel, _ []wire.WriteTag) {
		logger.Info("active model updated", "modelId", v.ModelID)
	}, func(err error) {
		logger.Warn("activeModel signal errored", "error", err)
	})
	if err := setter.Set(ActiveModel{ModelID: "demo-model"}); err != nil {
		logger.Warn("activeModel set failed", "error", err)
	}
}
