package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stablessh/internal/config"
	"stablessh/internal/ctl"
	"stablessh/internal/obs"
	"stablessh/internal/pipes"
	"stablessh/internal/pool"
	"stablessh/internal/session"
	"stablessh/internal/transport"
)

func newServerCmd() *cobra.Command {
	var (
		listen              string
		forward             string
		idleSeconds         int
		keepaliveSeconds    int
		windowBits          int
		holdTimeoutSeconds  int
		collectIntervalSecs int
		ctlListen           string
		rateLimitBps        int64
		configPath          string
		logLevel            string
		logFile             string
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Accept resumable tunnel sessions and forward to a TCP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("listen") {
				listen = cfg.Server.Listen
			}
			if !flags.Changed("forward") {
				forward = cfg.Server.Forward
			}
			if !flags.Changed("idle") {
				idleSeconds = cfg.Server.IdleSeconds
			}
			if !flags.Changed("keepalive") {
				keepaliveSeconds = cfg.Server.KeepaliveSeconds
			}
			if !flags.Changed("bufsize") {
				windowBits = cfg.Server.WindowBits
			}
			if !flags.Changed("hold-timeout") {
				holdTimeoutSeconds = cfg.Server.HoldTimeoutSeconds
			}
			if !flags.Changed("hold-collect-interval") {
				collectIntervalSecs = cfg.Server.CollectIntervalSeconds
			}
			if !flags.Changed("ctl-listen") {
				ctlListen = cfg.Server.CtlListen
			}
			if !flags.Changed("rate-limit") {
				rateLimitBps = cfg.Server.RateLimitBytesPerSec
			}
			if logLevel == "" {
				logLevel = obs.LevelFromEnv()
			}
			if !flags.Changed("log-file") {
				logFile = cfg.Log.Filename
			}

			return runServer(serverOptions{
				listen:              listen,
				forward:             forward,
				idleSeconds:         idleSeconds,
				keepaliveSeconds:    keepaliveSeconds,
				windowBits:          windowBits,
				holdTimeoutSeconds:  holdTimeoutSeconds,
				collectIntervalSecs: collectIntervalSecs,
				ctlListen:           ctlListen,
				rateLimitBps:        rateLimitBps,
				logLevel:            logLevel,
				logRotate: obs.FileConfig{
					Filename:   logFile,
					MaxSize:    cfg.Log.MaxSize,
					MaxBackups: cfg.Log.MaxBackups,
					MaxAge:     cfg.Log.MaxAge,
					Compress:   cfg.Log.Compress,
				},
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&listen, "listen", "l", "0.0.0.0:2222", "QUIC bind address")
	flags.StringVarP(&forward, "forward", "f", "localhost:22", "TCP upstream to forward to")
	flags.IntVarP(&idleSeconds, "idle", "i", 3, "QUIC idle timeout in seconds (0 = off)")
	flags.IntVarP(&keepaliveSeconds, "keepalive", "k", 1, "QUIC keepalive in seconds (0 = off)")
	flags.IntVarP(&windowBits, "bufsize", "b", 32, "sliding-window bits B")
	flags.IntVarP(&holdTimeoutSeconds, "hold-timeout", "t", 604800, "idle pool entry eviction, in seconds")
	flags.IntVarP(&collectIntervalSecs, "hold-collect-interval", "c", 60, "pool GC period, in seconds")
	flags.StringVar(&ctlListen, "ctl-listen", "[::1]:50051", "control RPC bind address")
	flags.Int64Var(&rateLimitBps, "rate-limit", 0, "per-connection upstream byte rate cap (0 = unbounded)")
	flags.StringVar(&configPath, "config", "", "optional YAML overrides file")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default: $STABLESSH_LOG or info)")
	flags.StringVar(&logFile, "log-file", "", "optional rotated log file")

	return cmd
}

type serverOptions struct {
	listen              string
	forward             string
	idleSeconds         int
	keepaliveSeconds    int
	windowBits          int
	holdTimeoutSeconds  int
	collectIntervalSecs int
	ctlListen           string
	rateLimitBps        int64
	logLevel            string
	logRotate           obs.FileConfig
}

func runServer(opt serverOptions) error {
	logger, err := obs.New(opt.logLevel, opt.logRotate)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	cert, err := transport.GenerateSelfSignedCert("stablessh-server")
	if err != nil {
		return err
	}
	quicCfg := (transport.Config{IdleSeconds: opt.idleSeconds, KeepaliveSeconds: opt.keepaliveSeconds}).QUICConfig()

	listener, err := transport.Listen(opt.listen, transport.ServerTLSConfig(cert), quicCfg)
	if err != nil {
		return err
	}
	defer listener.Close()
	log.Infow("listening", "addr", opt.listen, "forward", opt.forward)

	p := pool.New(opt.windowBits,
		time.Duration(opt.collectIntervalSecs)*time.Second,
		time.Duration(opt.holdTimeoutSeconds)*time.Second,
		opt.rateLimitBps)
	go p.Collect(ctx)

	ctlSrv := ctl.NewServer(p, opt.ctlListen, log)
	if err := ctlSrv.Start(); err != nil {
		return err
	}
	defer ctlSrv.Stop()
	log.Infow("control RPC listening", "addr", opt.ctlListen)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := transport.Accept(ctx, listener)
		if err != nil {
			if ctx.Err() != nil {
				log.Infow("shutting down, accept loop stopped")
				return nil
			}
			log.Errorw("accept failed", "error", err)
			continue
		}
		go handleServerSession(ctx, conn, p, opt.forward, log)
	}
}

func handleServerSession(ctx context.Context, conn *quic.Conn, p *pool.Pool, forward string, log *zap.SugaredLogger) {
	pubkey, err := transport.PubKey(conn.ConnectionState().TLS)
	if err != nil {
		log.Errorw("no peer pubkey, dropping session", "error", err)
		conn.CloseWithError(0, "no peer certificate")
		return
	}
	displayName := transport.DisplayName(conn.ConnectionState().TLS)
	shortID := transport.ShortID(pubkey)

	entry, err := p.GetOrCreate(pubkey, displayName, func() (net.Conn, error) {
		return net.Dial("tcp", forward)
	})
	if err != nil {
		log.Errorw("dial forward target failed", "id", shortID, "forward", forward, "error", err)
		conn.CloseWithError(1, "forward dial failed")
		return
	}

	handle, err := p.Hold(pubkey)
	if err != nil {
		log.Warnw("rejecting session, entry in use", "id", shortID, "error", err)
		conn.CloseWithError(2, "entry in use")
		return
	}
	defer handle.Release()

	log.Infow("session starting", "id", shortID, "name", displayName)

	ep := session.Endpoint{
		OutboundQueue: entry.TxQueue,
		OutboundMu:    entry.TxMutex(),
		InboundCursor: &entry.RxCursor,
		LocalReader:   entry.Socket(),
		LocalWriter:   pipes.NopFlusher{Writer: entry.Socket()},
	}

	var sess session.Session
	kind, runErr := session.Run(ctx, conn, ep, &sess)
	log.Infow("session ended", "id", shortID, "kind", kind.String(), "error", runErr)
}
