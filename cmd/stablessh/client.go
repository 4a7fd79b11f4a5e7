package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stablessh/internal/config"
	"stablessh/internal/errkind"
	"stablessh/internal/obs"
	"stablessh/internal/pipes"
	"stablessh/internal/queue"
	"stablessh/internal/session"
	"stablessh/internal/transport"
)

func newClientCmd() *cobra.Command {
	var (
		only4            bool
		only6            bool
		idleSeconds      int
		keepaliveSeconds int
		windowBits       int
		configPath       string
		logLevel         string
		logFile          string
	)

	cmd := &cobra.Command{
		Use:   "client host:port",
		Short: "Connect stdin/stdout to a stablessh server over a resumable QUIC tunnel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if only4 && only6 {
				return fmt.Errorf("client: -4 and -6 are mutually exclusive")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("idle") {
				idleSeconds = cfg.Client.IdleSeconds
			}
			if !flags.Changed("keepalive") {
				keepaliveSeconds = cfg.Client.KeepaliveSeconds
			}
			if !flags.Changed("bufsize") {
				windowBits = cfg.Client.WindowBits
			}
			if logLevel == "" {
				logLevel = obs.LevelFromEnv()
			}
			if !flags.Changed("log-file") {
				logFile = cfg.Log.Filename
			}

			return runClient(clientOptions{
				target:           args[0],
				only4:            only4,
				only6:            only6,
				idleSeconds:      idleSeconds,
				keepaliveSeconds: keepaliveSeconds,
				windowBits:       windowBits,
				logLevel:         logLevel,
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
	flags.BoolVarP(&only4, "ipv4", "4", false, "restrict resolution to IPv4")
	flags.BoolVarP(&only6, "ipv6", "6", false, "restrict resolution to IPv6")
	flags.IntVar(&idleSeconds, "idle", 3, "QUIC idle timeout in seconds (0 = off)")
	flags.IntVar(&keepaliveSeconds, "keepalive", 1, "QUIC keepalive in seconds (0 = off)")
	flags.IntVar(&windowBits, "bufsize", 32, "sliding-window bits B")
	flags.StringVar(&configPath, "config", "", "optional YAML overrides file")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default: $STABLESSH_LOG or info)")
	flags.StringVar(&logFile, "log-file", "", "optional rotated log file")

	return cmd
}

type clientOptions struct {
	target           string
	only4, only6     bool
	idleSeconds      int
	keepaliveSeconds int
	windowBits       int
	logLevel         string
	logRotate        obs.FileConfig
}

// reconnectBackoff bounds the delay between dial attempts after a
// retryable session end (spec section 4.6's client dial-with-retry
// loop never specifies a backoff; this keeps a failed server from
// being hammered).
const reconnectBackoff = 2 * time.Second

func runClient(opt clientOptions) error {
	logger, err := obs.New(opt.logLevel, opt.logRotate)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cert, err := transport.GenerateSelfSignedCert("stablessh-client")
	if err != nil {
		return err
	}
	tlsCfg := transport.ClientTLSConfig(cert)
	quicCfg := (transport.Config{IdleSeconds: opt.idleSeconds, KeepaliveSeconds: opt.keepaliveSeconds}).QUICConfig()

	// The queue, its mutex, and the inbound cursor are the client's
	// own single "pool entry": they must survive across reconnects so
	// a dropped session resumes instead of losing unacked bytes.
	outboundQueue := queue.New(opt.windowBits)
	var outboundMu sync.Mutex
	var inboundCursor pipes.Cursor

	ep := session.Endpoint{
		OutboundQueue: outboundQueue,
		OutboundMu:    &outboundMu,
		InboundCursor: &inboundCursor,
		LocalReader:   os.Stdin,
		LocalWriter:   pipes.NopFlusher{Writer: os.Stdout},
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		addrs, err := transport.Resolve(opt.target, opt.only4, opt.only6)
		if err != nil {
			return err
		}

		conn, err := transport.DialFirstReachable(ctx, addrs, tlsCfg, quicCfg)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warnw("dial failed, retrying", "error", err)
			if !sleepOrDone(ctx, reconnectBackoff) {
				return nil
			}
			continue
		}

		log.Infow("session starting", "target", opt.target)
		var sess session.Session
		kind, runErr := session.Run(ctx, conn, ep, &sess)
		conn.CloseWithError(0, "session ended")
		log.Infow("session ended", "kind", kind.String(), "error", runErr)

		if ctx.Err() != nil {
			return nil
		}
		if !isRetryable(kind) {
			return runErr
		}
		if !sleepOrDone(ctx, reconnectBackoff) {
			return nil
		}
	}
}

func isRetryable(k errkind.Kind) bool {
	return k == errkind.Retry
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
