package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	apexlog "github.com/apex/log"
	apexjson "github.com/apex/log/handlers/json"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/precache"
	"github.com/unkn0wn-root/precache/codec"
	"github.com/unkn0wn-root/precache/genstore"
	asynchook "github.com/unkn0wn-root/precache/hooks/async"
	"github.com/unkn0wn-root/precache/internal/config"
	apexadapter "github.com/unkn0wn-root/precache/log/apex"
	logruslog "github.com/unkn0wn-root/precache/log/logrus"
	slogadapter "github.com/unkn0wn-root/precache/log/slog"
	zaplog "github.com/unkn0wn-root/precache/log/zap"
	zerologlog "github.com/unkn0wn-root/precache/log/zerolog"
	"github.com/unkn0wn-root/precache/network"
	"github.com/unkn0wn-root/precache/promhooks"
	pr "github.com/unkn0wn-root/precache/provider"
	"github.com/unkn0wn-root/precache/provider/bigcache"
	redisprov "github.com/unkn0wn-root/precache/provider/redis"
	"github.com/unkn0wn-root/precache/provider/ristretto"
	"github.com/unkn0wn-root/precache/provider/sqlite"
	"github.com/unkn0wn-root/precache/record"
	"github.com/unkn0wn-root/precache/sloghooks"
	"github.com/unkn0wn-root/precache/storage"
)

// headerSlack is added to MaxBodyBytes to bound decoded records.
const headerSlack = 1 << 20

type runtime struct {
	cfg     config.Config
	log     precache.Logger
	metrics *promhooks.Hooks
	hooks   *asynchook.Hooks
	storage *storage.Storage
	network *network.HTTP
}

func build(ctx context.Context, cfg config.Config, logw io.Writer) (*runtime, error) {
	log, err := newLogger(cfg.Logger, cfg.LogLevel, logw)
	if err != nil {
		return nil, err
	}
	log = precache.WithFields(log, precache.Fields{"namespace": cfg.Namespace})
	origin, err := cfg.OriginURL()
	if err != nil {
		return nil, err
	}

	sl, err := newSlog(cfg.LogLevel, logw)
	if err != nil {
		return nil, err
	}
	metrics := promhooks.New(nil)
	hooks := asynchook.New(precache.JoinHooks(
		metrics,
		sloghooks.New(sl, sloghooks.Options{FetchEvery: 100, CorruptEvery: 10}),
	), 1, 1024)

	p, names, err := newProvider(ctx, cfg)
	if err != nil {
		hooks.Close()
		return nil, err
	}
	c, err := newCodec(cfg.Codec, cfg.MaxBodyBytes)
	if err != nil {
		hooks.Close()
		_ = p.Close(ctx)
		return nil, err
	}
	store, err := storage.New(storage.Options{
		Namespace: cfg.Namespace,
		Provider:  p,
		Codec:     c,
		GenStore:  names,
		OnCorrupt: hooks.EntryCorrupt,
	})
	if err != nil {
		hooks.Close()
		_ = p.Close(ctx)
		return nil, err
	}

	return &runtime{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		hooks:   hooks,
		storage: store,
		network: network.New(network.Config{
			Origin:  origin,
			Host:    cfg.OriginHost,
			Timeout: cfg.Timeout,
		}),
	}, nil
}

func (rt *runtime) newWorker() (*precache.Worker, error) {
	origin, err := rt.cfg.OriginURL()
	if err != nil {
		return nil, err
	}
	return precache.New(precache.Options{
		Generation:         rt.cfg.Generation,
		Assets:             rt.cfg.Assets,
		Storage:            rt.storage,
		Fetcher:            rt.network,
		Origin:             origin,
		Logger:             rt.log,
		Hooks:              rt.hooks,
		WaitForClients:     rt.cfg.WaitForClients,
		DisableClaim:       rt.cfg.DisableClaim,
		InstallConcurrency: rt.cfg.InstallConcurrency,
		MaxBodyBytes:       rt.cfg.MaxBodyBytes,
	})
}

// register installs and activates the configured generation on a fresh
// registration.
func (rt *runtime) register(ctx context.Context) (*precache.Registration, error) {
	w, err := rt.newWorker()
	if err != nil {
		return nil, err
	}
	reg := precache.NewRegistration(precache.RegistrationOptions{
		ClientIdleTimeout: rt.cfg.ClientIdleTimeout,
		MaxClients:        rt.cfg.MaxClients,
	})
	start := time.Now()
	if err := reg.Register(ctx, w); err != nil {
		if reg.Active() != w {
			return nil, fmt.Errorf("register %s: %w", w.Generation(), err)
		}
		// installed and serving; activation is retried on the next release
		rt.log.Warn("activation incomplete", precache.Fields{"generation": w.Generation(), "err": err})
	}
	rt.log.Info("generation installed", precache.Fields{
		"generation": w.Generation(),
		"assets":     len(w.Assets()),
		"took":       time.Since(start).String(),
	})
	return reg, nil
}

func (rt *runtime) Close(ctx context.Context) error {
	rt.hooks.Close()
	return rt.storage.Close(ctx)
}

func newLogger(name, level string, w io.Writer) (precache.Logger, error) {
	switch name {
	case "zap":
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(w), lvl)
		return zaplog.ZapLogger{L: zap.New(core)}, nil
	case "zerolog":
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		return zerologlog.Logger{L: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}, nil
	case "logrus":
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		l := logrus.New()
		l.SetOutput(w)
		l.SetFormatter(&logrus.JSONFormatter{})
		l.SetLevel(lvl)
		return logruslog.LogrusLogger{E: logrus.NewEntry(l)}, nil
	case "slog":
		l, err := newSlog(level, w)
		if err != nil {
			return nil, err
		}
		return slogadapter.Logger{L: l}, nil
	case "apex":
		lvl, err := apexlog.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		return apexadapter.Logger{L: &apexlog.Logger{Handler: apexjson.New(w), Level: lvl}}, nil
	}
	return nil, fmt.Errorf("unknown logger %q", name)
}

func newSlog(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// newProvider returns the byte store and, when the store is process-local
// or shared through redis, the generation registry to use with it.
func newProvider(ctx context.Context, cfg config.Config) (pr.Provider, genstore.GenStore, error) {
	switch cfg.Provider {
	case "bigcache":
		p, err := bigcache.New(bigcache.Config{HardMaxCacheSizeMB: cfg.BigCache.HardMaxCacheSizeMB})
		if err != nil {
			return nil, nil, err
		}
		return p, genstore.NewLocalGenStore(), nil
	case "ristretto":
		p, err := ristretto.New(ristretto.Config{MaxCost: cfg.Ristretto.MaxCost})
		if err != nil {
			return nil, nil, err
		}
		return p, genstore.NewLocalGenStore(), nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		// the generation registry owns the client and closes it
		p, err := redisprov.New(redisprov.Config{Client: client})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return p, genstore.NewRedisGenStore(client, cfg.Namespace), nil
	case "sqlite":
		p, err := sqlite.New(ctx, sqlite.Config{Path: cfg.SQLite.Path})
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

func newCodec(name string, maxBody int64) (codec.Codec[record.Record], error) {
	var c codec.Codec[record.Record]
	switch name {
	case "proto":
		c = codec.Proto{}
	case "json":
		c = codec.JSON[record.Record]{}
	case "cbor":
		cb, err := codec.NewCBOR[record.Record](codec.CBOROptions{})
		if err != nil {
			return nil, err
		}
		c = cb
	case "msgpack":
		c = codec.Msgpack[record.Record]{}
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
	if maxBody > 0 {
		c = codec.Limit[record.Record]{Inner: c, MaxDecode: int(maxBody) + headerSlack}
	}
	return c, nil
}
