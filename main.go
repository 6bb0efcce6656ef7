package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"prboard/internal/action"
	"prboard/internal/cache"
	"prboard/internal/config"
	"prboard/internal/dashboard"
	"prboard/internal/forge"
	"prboard/internal/git"
	"prboard/internal/logger"
	"prboard/internal/metrics"
	"prboard/internal/quota"
	"prboard/internal/triage"
	"prboard/internal/tui"
)

const (
	lastOrgKey = "last-organization"
	lastOrgTTL = 30 * 24 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	cfg, err := config.New(fetchConfigPath())
	if err != nil {
		stdlog.Fatalf("cannot initialize config: %v", err)
	}

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		stdlog.Fatalf("cannot initialize logger: %v", err)
	}
	defer log.Sync()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("prboard exited with error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	m := metrics.New()
	defer func() {
		if cfg.Metrics.Textfile == "" {
			return
		}
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn("cannot write metrics", zap.Error(err))
		}
	}()

	store, closeStore, err := newStore(ctx, &cfg.Cache)
	if err != nil {
		return err
	}
	defer closeStore()
	c := cache.New(store, log)

	tracker := quota.New(log, m.ObserveQuota)

	var transport forge.Transport
	switch cfg.GitHub.Transport {
	case "gh":
		transport = forge.NewGHTransport(cfg.GitHub.Hostname)
	default:
		transport = forge.NewHTTPTransport(cfg.GitHub.APIURL, cfg.GitHub.Token)
	}
	client := forge.NewClient(transport, tracker, log,
		forge.WithPacing(cfg.GitHub.RPS, cfg.GitHub.Burst),
		forge.WithObserver(m.ObserveCall),
		forge.WithTimeout(cfg.GitHub.Timeout),
	)

	engine := triage.New(client, log,
		triage.WithConcurrency(cfg.Triage.Concurrency),
		triage.WithCheckPrefix(cfg.Triage.CheckPrefix),
		triage.WithEnrichObserver(m.ObserveEnrichment),
	)

	var program *tea.Program
	executor := action.New(log,
		action.WithPublisher(func(s action.Status) {
			if program != nil {
				program.Send(tui.ActionStatus(s))
			}
		}),
		action.WithObserver(func(kind string, phase action.Phase) {
			m.ObserveAction(kind, string(phase))
		}),
	)

	workspace := dashboard.NewWorkspace(initialOrg(ctx, cfg, c, log))
	workspace.Subscribe(func(org string) {
		log.Info("organization selected", zap.String("org", org))
		if err := c.Set(ctx, lastOrgKey, org, lastOrgTTL); err != nil {
			log.Warn("cannot remember organization", zap.Error(err))
		}
	})

	session := &dashboard.Session{
		Client:    client,
		Quota:     tracker,
		Cache:     c,
		Engine:    engine,
		Executor:  executor,
		Workspace: workspace,
		Logger:    log,
		OnRefresh: m.ObserveRefresh,
	}

	program = tea.NewProgram(tui.New(ctx, session), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "run dashboard")
	}
	return nil
}

func newStore(ctx context.Context, cfg *config.Cache) (cache.Store, func(), error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryStore(), func() {}, nil
	case "redis":
		rs, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisKey)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	default:
		fs, err := cache.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}

// initialOrg picks the organization shown first: configured, else the owner
// of the current repository's origin, else the last one selected.
func initialOrg(ctx context.Context, cfg *config.Config, c *cache.Cache, log *zap.Logger) string {
	if cfg.Org != "" {
		return cfg.Org
	}
	if owner, ok := git.DefaultOwner(ctx, webHost(cfg)); ok {
		log.Info("using organization from origin remote", zap.String("org", owner))
		return owner
	}
	var last string
	if ok, err := c.Get(ctx, lastOrgKey, &last); err == nil && ok {
		return last
	}
	return ""
}

// webHost is the host git remotes point at for the configured API.
func webHost(cfg *config.Config) string {
	if cfg.GitHub.Transport == "gh" && cfg.GitHub.Hostname != "" {
		return cfg.GitHub.Hostname
	}
	u, err := url.Parse(cfg.GitHub.APIURL)
	if err != nil || u.Hostname() == "" {
		return "github.com"
	}
	return strings.TrimPrefix(u.Hostname(), "api.")
}

func fetchConfigPath() string {
	var path string

	flag.StringVar(&path, "config_path", "", "Path to the config file")
	flag.Parse()

	return path
}
