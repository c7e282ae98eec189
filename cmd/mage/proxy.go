package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	clog "github.com/charmbracelet/log"

	mlog "github.com/xndrbh/mage/log"
	"github.com/xndrbh/mage/session"
	"github.com/xndrbh/mage/transport"
)

// proxyChannel is the single logical channel the proxy subcommand bridges,
// per spec.md §6's "using channel 1".
const proxyChannel = 1

// mageAddr is one parsed `<scheme>[+listen]://<host>:<port>` endpoint.
type mageAddr struct {
	scheme string
	listen bool
	host   string
	port   string
}

func (a mageAddr) hostport() string { return net.JoinHostPort(a.host, a.port) }

func parseAddr(raw string) (mageAddr, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return mageAddr{}, fmt.Errorf("address %q missing scheme://", raw)
	}
	listen := false
	if s, ok := strings.CutSuffix(scheme, "+listen"); ok {
		scheme = s
		listen = true
	}
	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		return mageAddr{}, fmt.Errorf("address %q: %w", raw, err)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return mageAddr{}, fmt.Errorf("address %q: bad port: %w", raw, err)
	}
	return mageAddr{scheme: scheme, listen: listen, host: host, port: port}, nil
}

func buildTransport(scheme string) (transport.Transport, error) {
	switch scheme {
	case "tcp":
		return &transport.TCP{}, nil
	case "socks":
		return nil, errors.New("proxy: socks cannot be the mage -addr scheme; only tcp is supported")
	case "http":
		return nil, errors.New("proxy: http cannot be the mage -addr scheme; only tcp is supported")
	default:
		return nil, fmt.Errorf("proxy: unknown transport scheme %q", scheme)
	}
}

// runProxy implements `mage proxy`: bridge a local TCP socket through a
// mage session to a remote peer using channel 1, per spec.md §6.
func runProxy(args []string) error {
	fs := flag.NewFlagSet("proxy", flag.ContinueOnError)
	seedB64 := fs.String("seed", os.Getenv("MAGE_SEED"), "local long-term seed, base64")
	remoteB64 := fs.String("remote", os.Getenv("MAGE_KEY"), "remote peer's public key, base64")
	addr := fs.String("addr", os.Getenv("MAGE_ADDRESS"), "mage peer address: <scheme>[+listen]://<host>:<port>")
	localAddr := fs.String("local", "127.0.0.1:0", "local TCP socket bridged onto the mage session")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *addr == "" {
		return errors.New("proxy: -addr is required")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger := mlog.New("mage/proxy", level, nil)

	seed, err := base64.StdEncoding.DecodeString(*seedB64)
	if err != nil {
		return fmt.Errorf("decode -seed: %w", err)
	}
	remotePublic, err := base64.StdEncoding.DecodeString(*remoteB64)
	if err != nil {
		return fmt.Errorf("decode -remote: %w", err)
	}

	ma, err := parseAddr(*addr)
	if err != nil {
		return err
	}
	tr, err := buildTransport(ma.scheme)
	if err != nil {
		return err
	}

	ctx := context.Background()
	cfg := session.DefaultConfig()

	if ma.listen {
		return serveProxy(ctx, tr, ma, seed, remotePublic, *localAddr, cfg, logger)
	}
	return dialProxy(ctx, tr, ma, seed, remotePublic, *localAddr, cfg, logger)
}

func dialProxy(ctx context.Context, tr transport.Transport, ma mageAddr, seed, remotePublic []byte, localAddr string, cfg session.Config, logger *clog.Logger) error {
	ln, err := net.Listen("tcp", localAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", localAddr, err)
	}
	defer ln.Close()
	logger.Infof("listening on %s, bridging to %s", ln.Addr(), ma.hostport())

	for {
		local, err := ln.Accept()
		if err != nil {
			return err
		}
		pair, err := tr.Connect(ctx, ma.hostport())
		if err != nil {
			local.Close()
			return fmt.Errorf("connect %s: %w", ma.hostport(), err)
		}
		go bridgeOne(ctx, pair, local, false, seed, remotePublic, cfg)
	}
}

func serveProxy(ctx context.Context, tr transport.Transport, ma mageAddr, seed, remotePublic []byte, dialTarget string, cfg session.Config, logger *clog.Logger) error {
	ln, err := tr.Listen(ctx, ma.hostport())
	if err != nil {
		return fmt.Errorf("listen %s: %w", ma.hostport(), err)
	}
	defer ln.Close()
	logger.Infof("accepting mage sessions on %s, bridging each to %s", ma.hostport(), dialTarget)

	for {
		pair, err := ln.Accept(ctx)
		if err != nil {
			return err
		}
		local, err := net.Dial("tcp", dialTarget)
		if err != nil {
			pair.Close()
			continue
		}
		go bridgeOne(ctx, pair, local, true, seed, remotePublic, cfg)
	}
}

// bridgeOne runs one mage session end-to-end: handshake, open channel 1,
// and copy bytes between it and local until either side closes.
func bridgeOne(ctx context.Context, pair *transport.Pair, local net.Conn, isServer bool, seed, remotePublic []byte, cfg session.Config) {
	defer local.Close()

	sess, err := session.Open(ctx, pair, isServer, seed, remotePublic, cfg)
	if err != nil {
		return
	}
	defer sess.Close()

	ch, err := sess.OpenChannel(proxyChannel)
	if err != nil {
		return
	}

	go sess.RunOutgoing(ctx)
	go sess.RunIncoming(ctx)

	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		buf := make([]byte, 32*1024)
		for {
			n, err := local.Read(buf)
			if n > 0 {
				if sendErr := ch.Send(append([]byte(nil), buf[:n]...)); sendErr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		for {
			p, err := ch.Recv()
			if err != nil {
				return
			}
			if _, werr := local.Write(p); werr != nil {
				return
			}
		}
	}()

	<-done
}
