// Command kryptos runs the encrypted broadcast relay.
//
//	kryptos <port> <cipher_kind> <key_bits> [preshared_key]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/kryptos/cacher"
	"github.com/cyberinferno/kryptos/config"
	"github.com/cyberinferno/kryptos/encryption"
	"github.com/cyberinferno/kryptos/logger"
	"github.com/cyberinferno/kryptos/server"
	"github.com/cyberinferno/kryptos/transport"
)

const serviceName = "kryptos"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run starts the relay and blocks until ctx is done. It returns the process
// exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Parse(args)
	switch {
	case errors.Is(err, config.ErrHelp):
		fmt.Fprint(stdout, config.Usage())
		return 0
	case errors.Is(err, config.ErrVersion):
		fmt.Fprintln(stdout, config.VersionString())
		return 0
	case err != nil:
		fmt.Fprintf(stderr, "%s: %v\nTry --help for help.\n", serviceName, err)
		return 1
	}

	env, err := config.LoadEnvironment()
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\nTry --help for help.\n", serviceName, err)
		return 1
	}

	base, err := newLogger(env)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return 1
	}
	defer base.Close()
	log := base.With(logger.Field{Key: "instance", Value: uuid.NewString()})

	key := cfg.PresharedKey
	if !cfg.HasKey() {
		key, err = encryption.GenerateKey(cfg.KeySize)
		if err != nil {
			log.Error("failed to generate key", logger.Field{Key: "error", Value: err})
			return 1
		}
		fmt.Fprintf(stdout, "Generated key: %s\n", key)
	}

	codec, err := encryption.New(cfg.Cipher, []byte(key))
	if err != nil {
		log.Error("failed to set up cipher", logger.Field{Key: "error", Value: err})
		return 1
	}
	if cfg.Cipher.Weak() {
		log.Warn("selected cipher is unsafe", logger.Field{Key: "cipher", Value: cfg.Cipher.String()})
	}

	names, closeNames := newPeerNameCache(env, log)
	defer closeNames()

	var ack []byte
	if env.Ack != "" {
		ack = []byte(env.Ack)
	}

	srv := server.New(server.Options{
		Name: serviceName,
		Addr: net.JoinHostPort(env.BindHost, strconv.Itoa(int(cfg.Port))),
		Transport: transport.Options{
			Codec:          codec,
			ReadBufferSize: env.ReadBuffer,
			WriteTimeout:   env.WriteTimeout,
		},
		Ack:          ack,
		PollInterval: env.PollInterval,
		Logger:       log,
		PeerNames:    names,
	})
	if err := srv.Start(); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", serviceName, err)
		return 1
	}

	log.Info("relay ready",
		logger.Field{Key: "cipher", Value: cfg.Cipher.String()},
		logger.Field{Key: "key_bits", Value: int(cfg.KeySize)},
	)

	g, gctx := errgroup.WithContext(ctx)

	if env.StatsSchedule != "" {
		reporter, err := server.NewStatsReporter(srv, env.StatsSchedule)
		if err != nil {
			log.Error("stats reporter disabled", logger.Field{Key: "error", Value: err})
		} else {
			reporter.Start()
			g.Go(func() error {
				<-gctx.Done()
				<-reporter.Stop().Done()
				return nil
			})
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		notify(log, daemon.SdNotifyStopping)
		srv.Stop()
		return nil
	})

	notify(log, daemon.SdNotifyReady)
	_ = g.Wait()

	return 0
}

func newLogger(env config.Environment) (logger.Logger, error) {
	level, err := logger.ParseLevel(env.LogLevel)
	if err != nil {
		return nil, err
	}

	if env.LogDir != "" {
		return logger.NewFileLogger(serviceName, env.LogDir, level)
	}

	return logger.NewConsoleLogger(serviceName, level), nil
}

// newPeerNameCache returns nil unless peer resolution is enabled. Redis is used
// when an address is configured so that several relays share resolved names.
func newPeerNameCache(env config.Environment, log logger.Logger) (cacher.Cacher[string], func()) {
	if !env.ResolvePeers {
		return nil, func() {}
	}

	if env.RedisAddr == "" {
		return cacher.NewMemoryCacher[string](cache.NoExpiration, 10*time.Minute), func() {}
	}

	rdb := redis.NewClient(&redis.Options{Addr: env.RedisAddr})
	log.Info("caching peer names in redis", logger.Field{Key: "redis", Value: env.RedisAddr})

	return cacher.NewRedisCacher[string](rdb, serviceName+":peer:"), func() { _ = rdb.Close() }
}

func notify(log logger.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Debug("sd_notify failed", logger.Field{Key: "error", Value: err})
	}
}
