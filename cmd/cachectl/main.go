// cachectl is a small diagnostic tool for exercising a dynacache table from
// the command line, typically against LocalStack.
//
//	cachectl -config config.yaml set mykey myvalue
//	cachectl -config config.yaml get mykey
//	cachectl -config config.yaml del mykey
//	cachectl -config config.yaml ttl mykey
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/dynacache/pkg/dynacache"
	zapadapter "github.com/rzpsarthak13/dynacache/pkg/dynacache/log/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	ttl := flag.Duration("ttl", 0, "TTL for set (0 = no expiry)")
	flag.Parse()

	if flag.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: cachectl [-config file] [-ttl d] <get|set|del|ttl|exists|incr> <key> [value]")
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cachectl: %v\n", err)
		os.Exit(1)
	}

	zl, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cachectl: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cache, err := dynacache.New(ctx, cfg, dynacache.WithLogger(zapadapter.ZapLogger{L: zl}))
	if err != nil {
		fmt.Fprintf(os.Stderr, "cachectl: %v\n", err)
		os.Exit(1)
	}
	defer cache.Close()

	if err := run(ctx, cache, flag.Args(), *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "cachectl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cache dynacache.Cache, args []string, ttl time.Duration) error {
	op, key := args[0], args[1]
	switch op {
	case "get":
		v, ok, err := cache.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("(absent)")
			return nil
		}
		fmt.Printf("%v\n", v)
	case "set":
		if len(args) < 3 {
			return fmt.Errorf("set requires a value")
		}
		if err := cache.Set(ctx, key, args[2], ttl); err != nil {
			return err
		}
		fmt.Println("ok")
	case "del":
		if err := cache.Delete(ctx, key); err != nil {
			return err
		}
		fmt.Println("ok")
	case "ttl":
		remaining, err := cache.TTL(ctx, key)
		if err != nil {
			return err
		}
		switch remaining {
		case dynacache.TTLMissing:
			fmt.Println("(absent)")
		case dynacache.TTLNone:
			fmt.Println("(no ttl)")
		default:
			fmt.Printf("%ds\n", remaining)
		}
	case "exists":
		ok, err := cache.Exists(ctx, key)
		if err != nil {
			return err
		}
		fmt.Println(ok)
	case "incr":
		n, err := cache.Increment(ctx, key, 1)
		if err != nil {
			return err
		}
		fmt.Println(n)
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	return nil
}

func loadConfig(path string) (*dynacache.Config, error) {
	cfg := dynacache.DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
