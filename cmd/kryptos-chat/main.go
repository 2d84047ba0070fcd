// Command kryptos-chat is a terminal client for a kryptos relay. Every line
// typed on stdin is sent to the relay; every message relayed from other
// clients is printed.
//
//	kryptos-chat <host:port> <cipher_kind> <key_bits> <key>
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/kryptos/client"
	"github.com/cyberinferno/kryptos/encryption"
)

const usage = "Usage: kryptos-chat <host:port> <cipher_kind> <key_bits> <key>\n"

var errDisconnected = errors.New("relay closed the connection")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 1 && (args[0] == "--help" || args[0] == "-h") {
		fmt.Fprint(stdout, usage)
		return 0
	}

	cfg, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "kryptos-chat: %v\n%s", err, usage)
		return 1
	}

	c := client.NewClient(cfg)
	defer c.Close()

	disconnected := make(chan struct{})
	var once sync.Once
	c.OnMessage(func(e client.MessageEvent) {
		fmt.Fprintf(stdout, "%s\n", e.Data)
	})
	c.OnError(func(e client.ErrorEvent) {
		fmt.Fprintf(stderr, "error: %v\n", e.Error)
	})
	c.OnConnectionState(func(e client.StateEvent) {
		if e.State == client.Disconnected {
			once.Do(func() { close(disconnected) })
		}
	})

	if err := c.Connect(); err != nil {
		fmt.Fprintf(stderr, "kryptos-chat: %v\n", err)
		return 1
	}
	fmt.Fprintf(stderr, "connected to %s\n", cfg.Address)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-disconnected:
				return errDisconnected
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if line == "" {
					continue
				}
				if err := c.Send([]byte(line)); err != nil {
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		fmt.Fprintf(stderr, "kryptos-chat: %v\n", err)
		return 1
	}

	return 0
}

func parseArgs(args []string) (client.Config, error) {
	if len(args) != 4 {
		return client.Config{}, fmt.Errorf("expected 4 arguments, got %d", len(args))
	}

	kind, err := encryption.ParseKind(args[1])
	if err != nil {
		return client.Config{}, err
	}
	size, err := encryption.ParseKeySize(args[2])
	if err != nil {
		return client.Config{}, err
	}
	if got := len(args[3]) * 8; got != int(size) {
		return client.Config{}, fmt.Errorf("%w: key is %d bits, expected %d", encryption.ErrKeySize, got, int(size))
	}

	codec, err := encryption.New(kind, []byte(args[3]))
	if err != nil {
		return client.Config{}, err
	}

	cfg := client.DefaultConfig(args[0])
	cfg.Codec = codec

	return cfg, nil
}
