// Command pictowire runs one end of a peer-to-peer encrypted messaging
// socket that hides ciphertext inside tiled, tagged cover images.
// Plaintext lines are read from stdin and sent; received plaintext is
// written to stdout, one line at a time.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-envparse"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/pictowire/pictowire/pkg/journal"
	"github.com/pictowire/pictowire/pkg/pictowire"
)

var opt struct {
	Help bool
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()

	if pflag.NArg() > 1 || opt.Help {
		fmt.Printf("usage: %s [options] [env_file]\n\noptions:\n%s\nnote: if env_file is provided, config from the environment is ignored\n", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	var e []string
	if pflag.NArg() == 0 {
		e = os.Environ()
	} else {
		x, err := readEnv(pflag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: read env file: %v\n", err)
			os.Exit(1)
		}
		e = x
	}

	var cfg pictowire.Config
	if err := cfg.UnmarshalEnv(e, false); err != nil {
		fmt.Fprintf(os.Stderr, "error: parse config: %v\n", err)
		os.Exit(1)
	}

	log := pictowire.NewLogger(cfg)

	var jdb *journal.DB
	if cfg.JournalPath != "" {
		db, err := journal.Open(cfg.JournalPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: open journal: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "error: migrate journal: %v\n", err)
			os.Exit(1)
		}
		jdb = db
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := pictowire.ServeMetrics(ctx, cfg.MetricsAddr, jdb); err != nil {
				log.Warn().Err(err).Msg("metrics server exited")
			}
		}()
	}

	sock := pictowire.New(cfg, log, jdb)
	if err := sock.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: connect: %v\n", err)
		os.Exit(1)
	}
	defer sock.Close()

	go relayStdinToSocket(ctx, sock, log)

	for {
		data, err := sock.Receive(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			log.Info().Msg("socket closed, exiting")
			return
		}
		fmt.Println(string(data))
	}
}

// relayStdinToSocket reads newline-delimited plaintext from stdin and
// forwards each line to the socket until stdin closes or ctx is done.
func relayStdinToSocket(ctx context.Context, sock *pictowire.Socket, log zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if err := sock.Send([]byte(line)); err != nil {
			log.Warn().Err(err).Msg("failed to send line, socket not connected")
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("stdin read error")
	}
}

func readEnv(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return nil, err
	}

	var r []string
	for k, v := range m {
		r = append(r, k+"="+v)
	}
	return r, nil
}
