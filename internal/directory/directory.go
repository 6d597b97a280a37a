// Package directory publishes live-stream presence to Redis so API replicas
// and edge nodes can resolve playback without consulting the orchestrator
// process. Each live stream is stored under a per-stream key carrying the
// node that owns it, refreshed with a TTL so entries for crashed nodes age
// out on their own.
package directory

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// TLSConfig controls TLS behaviour for Redis connections.
type TLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// Config configures the Redis-backed directory.
type Config struct {
	Addr       string
	Addrs      []string
	Username   string
	Password   string
	MasterName string
	KeyPrefix  string
	NodeID     string
	TTL        time.Duration
	Logger     *slog.Logger

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int

	TLS TLSConfig
}

// DefaultTTL is applied when the configuration does not choose an entry
// lifetime. RunRefresh must tick well inside the TTL or entries for
// long-lived streams expire mid-broadcast.
const DefaultTTL = 30 * time.Second

// Publisher maintains directory entries for the streams this node owns.
type Publisher struct {
	client    redis.UniversalClient
	keyPrefix string
	nodeID    string
	ttl       time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	announced map[string]struct{}
}

// New connects to Redis and returns a Publisher. The caller is responsible
// for ensuring Redis is reachable.
func New(cfg Config) (*Publisher, error) {
	addrs := make([]string, 0, len(cfg.Addrs)+1)
	for _, addr := range cfg.Addrs {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	if addr := strings.TrimSpace(cfg.Addr); addr != "" {
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redis addr is required")
	}
	nodeID := strings.TrimSpace(cfg.NodeID)
	if nodeID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("derive node id: %w", err)
		}
		nodeID = hostname
	}
	keyPrefix := strings.TrimSpace(cfg.KeyPrefix)
	if keyPrefix == "" {
		keyPrefix = "emberlive:streams"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   strings.TrimSpace(cfg.MasterName),
		Username:     strings.TrimSpace(cfg.Username),
		Password:     cfg.Password,
		TLSConfig:    tlsConfig,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   2,
	})
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:    client,
		keyPrefix: keyPrefix,
		nodeID:    nodeID,
		ttl:       ttl,
		logger:    logger,
		announced: make(map[string]struct{}),
	}, nil
}

// Key returns the Redis key for a full stream name.
func (p *Publisher) Key(fullName string) string {
	return p.keyPrefix + ":" + fullName
}

// Announce publishes the stream as live on this node and keeps it in the
// refresh set so RunRefresh renews the TTL.
func (p *Publisher) Announce(ctx context.Context, fullName string) error {
	if err := p.client.Set(ctx, p.Key(fullName), p.nodeID, p.ttl).Err(); err != nil {
		return fmt.Errorf("announce %s: %w", fullName, err)
	}
	p.mu.Lock()
	p.announced[fullName] = struct{}{}
	p.mu.Unlock()
	return nil
}

// Withdraw removes the stream's directory entry.
func (p *Publisher) Withdraw(ctx context.Context, fullName string) error {
	p.mu.Lock()
	delete(p.announced, fullName)
	p.mu.Unlock()
	if err := p.client.Del(ctx, p.Key(fullName)).Err(); err != nil {
		return fmt.Errorf("withdraw %s: %w", fullName, err)
	}
	return nil
}

// RunRefresh renews the TTL of every announced stream until the context is
// cancelled. The interval should stay well inside the configured TTL.
func (p *Publisher) RunRefresh(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = p.ttl / 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.mu.Lock()
			names := make([]string, 0, len(p.announced))
			for name := range p.announced {
				names = append(names, name)
			}
			p.mu.Unlock()
			for _, name := range names {
				if err := p.client.Set(ctx, p.Key(name), p.nodeID, p.ttl).Err(); err != nil {
					p.logger.Warn("refresh directory entry", "stream", name, "error", err)
				}
			}
		}
	}
}

// Resolve returns the node currently announcing the stream, or ok=false
// when the stream is not live anywhere.
func (p *Publisher) Resolve(ctx context.Context, fullName string) (node string, ok bool, err error) {
	value, err := p.client.Get(ctx, p.Key(fullName)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve %s: %w", fullName, err)
	}
	return value, true, nil
}

// Close releases the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if cfg.CAFile == "" && cfg.CertFile == "" && cfg.KeyFile == "" && cfg.ServerName == "" && !cfg.InsecureSkipVerify {
		return nil, nil
	}
	tlsConfig := &tls.Config{
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read redis ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse redis ca file %q", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, fmt.Errorf("redis tls requires both cert and key files")
	}
	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load redis client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
