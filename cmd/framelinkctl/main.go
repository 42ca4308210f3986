package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danmuck/framelink/client"
	"github.com/danmuck/framelink/icd"
	"github.com/danmuck/framelink/internal/config"
	"github.com/danmuck/framelink/internal/observability"
	"github.com/danmuck/framelink/transport/cobs"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: framelinkctl [-addr host:port] [-config file] <command>

commands:
  ping [value]     round-trip a u32 through the device
  sleep <millis>   ask the device to wait before replying
  watch            stream accelerometer samples until interrupted`)
	os.Exit(2)
}

func main() {
	addr := flag.String("addr", "", "device address (overrides config)")
	configPath := flag.String("config", "", "path to host config toml")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}

	logger := observability.InitLogger("framelinkctl")

	cfg := config.HostConfig{Addr: "127.0.0.1:9404", TimeoutMS: 3000}
	if *configPath != "" {
		loaded, err := config.LoadHostConfig(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("config load failed")
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	conn, err := net.Dial("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Addr).Msg("dial failed")
	}
	c := client.New(cobs.NewStream(conn), &client.Options{
		ErrorPath: cfg.ErrorPath,
		Logger:    &logger,
	})
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond

	switch flag.Arg(0) {
	case "ping":
		value := uint64(42)
		if flag.NArg() > 1 {
			value, err = strconv.ParseUint(flag.Arg(1), 10, 32)
			if err != nil {
				logger.Fatal().Err(err).Msg("bad ping value")
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		resp, err := client.Call(callCtx, c, icd.PingEndpoint, uint32(value))
		if err != nil {
			logger.Fatal().Err(err).Msg("ping failed")
		}
		fmt.Printf("ping: sent %d got %d\n", value, resp)
	case "sleep":
		if flag.NArg() < 2 {
			usage()
		}
		millis, err := strconv.ParseUint(flag.Arg(1), 10, 32)
		if err != nil {
			logger.Fatal().Err(err).Msg("bad sleep millis")
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout+time.Duration(millis)*time.Millisecond)
		defer cancel()
		start := time.Now()
		done, err := client.Call(callCtx, c, icd.SleepEndpoint, icd.SleepRequest{Millis: uint32(millis)})
		if err != nil {
			logger.Fatal().Err(err).Msg("sleep failed")
		}
		fmt.Printf("sleep: device waited %dms, round trip %s\n", done.Millis, time.Since(start).Round(time.Millisecond))
	case "watch":
		sub, err := client.Subscribe(c, icd.AccelTopic, 16, client.DropOldest)
		if err != nil {
			logger.Fatal().Err(err).Msg("subscribe failed")
		}
		defer sub.Close()
		for {
			sample, err := sub.Recv(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Fatal().Err(err).Msg("stream ended")
			}
			fmt.Printf("accel: x=%d y=%d z=%d\n", sample.X, sample.Y, sample.Z)
		}
	default:
		usage()
	}
}
