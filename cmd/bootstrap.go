// Copyright (C) 2024 Yota Hamada
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scriptyard/scriptyard/internal/auth"
	"github.com/scriptyard/scriptyard/internal/config"
	"github.com/scriptyard/scriptyard/internal/engine"
	"github.com/scriptyard/scriptyard/internal/environment"
	"github.com/scriptyard/scriptyard/internal/fanout"
	"github.com/scriptyard/scriptyard/internal/logger"
	"github.com/scriptyard/scriptyard/internal/mailer"
	"github.com/scriptyard/scriptyard/internal/metrics"
	"github.com/scriptyard/scriptyard/internal/models"
	"github.com/scriptyard/scriptyard/internal/queue"
	"github.com/scriptyard/scriptyard/internal/scheduler"
	"github.com/scriptyard/scriptyard/internal/store"
)

// core bundles every long-lived component shared by the server and
// scheduler subcommands, wired once at process startup in the order the
// teacher's start_all.go wires its own agent/server pair: config, logger,
// store, then the components that read/write through it.
type core struct {
	cfg       *config.Config
	log       logger.Logger
	store     *store.Store
	env       *environment.Manager
	bus       *fanout.Bus
	metrics   *metrics.Metrics
	tokens    *auth.TokenIssuer
	queue     *queue.Queue
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
}

func bootstrap(ctx context.Context) (*core, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logOpts := []logger.Option{logger.WithFormat(cfg.LogFormat)}
	if cfg.Debug {
		logOpts = append(logOpts, logger.WithDebug())
	}
	if quiet {
		logOpts = append(logOpts, logger.WithQuiet())
	}
	log := logger.NewLogger(logOpts...)

	scriptsDir := cfg.DataPath + "/scripts"
	if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data path: %w", err)
	}

	st, err := store.Open(ctx, cfg.DataPath+"/catalog.db")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	env := environment.NewManager(cfg.DataPath, log)
	env.Register(environment.NewPythonInterpreter("python3"))

	bus := fanout.New(64)
	reg := prometheus.DefaultRegisterer
	m := metrics.New(reg)
	m.SetSubscribers(reg, bus.SubscriberCount)

	secret, err := resolveTokenSecret(ctx, st, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	tokens := auth.NewTokenIssuer(auth.NewStaticTokenSecretProvider(secret), auth.DefaultTokenTTL)

	if err := seedAdmin(ctx, st, cfg, log); err != nil {
		st.Close()
		return nil, fmt.Errorf("seed admin user: %w", err)
	}

	var notifier engine.Notifier
	if cfg.SMTPHost != "" {
		notifier = mailer.New(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
	}

	eng := engine.New(st, env, bus, log,
		engine.WithOutputByteBudget(cfg.OutputByteBudgetPerStream),
		engine.WithDefaultTimeout(cfg.DefaultScriptTimeout()),
		engine.WithMetrics(m),
		engine.WithNotifier(notifier, cfg.SMTPFrom),
	)

	q := queue.New(cfg.RunQueueCapacity, cfg.WorkerPoolSize, eng.Handle, log,
		queue.WithRejectedHook(m.QueueRejected.Inc))
	m.SetQueueDepth(reg, q.Depth)

	sched := scheduler.New(st, q, bus, log, scheduler.WithMetrics(m))

	return &core{
		cfg:       cfg,
		log:       log,
		store:     st,
		env:       env,
		bus:       bus,
		metrics:   m,
		tokens:    tokens,
		queue:     q,
		engine:    eng,
		scheduler: sched,
	}, nil
}

func (c *core) shutdown() {
	c.scheduler.Stop()
	c.queue.Shutdown()
	c.store.Close()
}

// resolveTokenSecret uses cfg.SecretKey when set, otherwise generates and
// persists a random one in the settings table so restarts keep validating
// previously issued tokens.
func resolveTokenSecret(ctx context.Context, st *store.Store, cfg *config.Config) (auth.TokenSecret, error) {
	if cfg.SecretKey != "" {
		return auth.NewTokenSecretFromString(cfg.SecretKey)
	}
	const settingsKey = "jwt_secret"
	if existing, err := st.GetSetting(ctx, settingsKey); err == nil && existing != "" {
		return auth.NewTokenSecretFromString(existing)
	}
	generated, err := config.GenerateRandomPassword()
	if err != nil {
		return auth.TokenSecret{}, fmt.Errorf("generate jwt secret: %w", err)
	}
	if err := st.SetSetting(ctx, settingsKey, generated); err != nil {
		return auth.TokenSecret{}, fmt.Errorf("persist jwt secret: %w", err)
	}
	return auth.NewTokenSecretFromString(generated)
}

// seedAdmin creates the first admin user from cfg.AdminUsername/AdminPassword
// when the users table is empty, generating a random password and logging it
// once if AdminPassword is left unset.
func seedAdmin(ctx context.Context, st *store.Store, cfg *config.Config, log logger.Logger) error {
	count, err := st.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	username := cfg.AdminUsername
	if username == "" {
		username = "admin"
	}
	password := cfg.AdminPassword
	if password == "" {
		generated, err := config.GenerateRandomPassword()
		if err != nil {
			return err
		}
		password = generated
		log.Info("generated initial admin password, save it now", "username", username, "password", password)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u := &models.User{
		Username:     username,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		IsAdmin:      true,
		Theme:        "auto",
		Timezone:     "UTC",
	}
	return st.Create(ctx, u)
}
