// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

// Package testredis is package for starting a redis test server
package testredis

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"
)

const (
	fallbackAddr = "localhost:6379"
	fallbackPort = 6379
)

// Server represents a redis server implementation.
type Server interface {
	Addr() string
	Close() error
}

func freeport() (addr string, port int) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fallbackAddr, fallbackPort
	}

	netaddr := listener.Addr().(*net.TCPAddr)
	addr = netaddr.String()
	port = netaddr.Port
	_ = listener.Close()
	return addr, port
}

// Start starts a redis-server when available, otherwise falls back to miniredis.
func Start(ctx context.Context) (Server, error) {
	server, err := Process(ctx)
	if err != nil {
		return Mini(ctx)
	}
	return server, nil
}

// Process starts a redis-server test process.
func Process(ctx context.Context) (Server, error) {
	tmpdir, err := os.MkdirTemp("", "redisbloom-redis")
	if err != nil {
		return nil, err
	}

	// find a suitable port for listening
	addr, port := freeport()

	// write a configuration file, because redis doesn't support flags
	confpath := filepath.Join(tmpdir, "test.conf")
	arguments := []string{
		"daemonize no",
		"bind 127.0.0.1",
		"port " + strconv.Itoa(port),
		"timeout 0",
		"databases 2",
		"dbfilename dump.rdb",
		"dir " + tmpdir,
	}
	conf := strings.Join(arguments, "\n") + "\n"
	err = os.WriteFile(confpath, []byte(conf), 0644)
	if err != nil {
		_ = os.RemoveAll(tmpdir)
		return nil, err
	}

	// start the process
	cmd := exec.Command("redis-server", confpath)
	read, write, err := os.Pipe()
	if err != nil {
		_ = os.RemoveAll(tmpdir)
		return nil, err
	}
	cmd.Stdout = write
	if err := cmd.Start(); err != nil {
		_ = read.Close()
		_ = write.Close()
		_ = os.RemoveAll(tmpdir)
		return nil, err
	}

	cleanup := func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = read.Close()
		_ = write.Close()
		_ = os.RemoveAll(tmpdir)
	}

	// wait for redis to become ready
	waitForReady := make(chan error, 1)
	go func() {
		// wait for the message that looks like
		//   "The server is now ready to accept connections on port 6379"
		scanner := bufio.NewScanner(read)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.Contains(line, "now ready to accept") {
				break
			}
		}
		waitForReady <- scanner.Err()
		_, _ = io.Copy(io.Discard, read)
	}()

	select {
	case err := <-waitForReady:
		if err != nil {
			cleanup()
			return nil, err
		}
	case <-time.After(3 * time.Second):
		cleanup()
		return nil, errs.New("redis timeout")
	}

	// test whether we can actually connect
	if err := pingServer(ctx, addr); err != nil {
		cleanup()
		return nil, errs.New("unable to ping: %v", err)
	}

	return &process{addr, cleanup}, nil
}

type process struct {
	addr  string
	close func()
}

func (process *process) Addr() string {
	return process.addr
}

func (process *process) Close() error {
	process.close()
	return nil
}

func pingServer(ctx context.Context, addr string) error {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 1})
	defer func() { _ = client.Close() }()
	return client.Ping(ctx).Err()
}

// Mini starts miniredis server.
func Mini(_ context.Context) (Server, error) {
	var server *miniredis.Miniredis
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		server, err = miniredis.Run()
		if err == nil {
			break
		}
		// miniredis occasionally races on its listening port
		if !strings.Contains(err.Error(), "address already in use") {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	return &miniserver{server}, nil
}

type miniserver struct {
	*miniredis.Miniredis
}

// Close closes the underlying miniredis server.
func (s *miniserver) Close() error {
	s.Miniredis.Close()
	return nil
}
