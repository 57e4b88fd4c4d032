package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"Showtimes_Sync/internal/config"
	"Showtimes_Sync/internal/pkg"
	mysqlrepo "Showtimes_Sync/internal/repository/mysql"
	redisrepo "Showtimes_Sync/internal/repository/redis"
	"Showtimes_Sync/internal/service"
)

// engine 组装好的同步引擎；聊天传输层通过 Communities/Projects/Collab 接入
type engine struct {
	log      *zap.Logger
	rdb      *goredis.Client
	db       *gorm.DB
	producer *pkg.KafkaProducer

	pending     *redisrepo.ResyncRepository
	queue       *service.WriteQueue
	store       *service.Store
	Communities *service.CommunityService
	Projects    *service.ProjectService
	Collab      *service.CollabService
	Reconciler  *service.Reconciler
}

func openEngine(ctx context.Context, cfg *config.Config, log *zap.Logger) (*engine, error) {
	if strings.TrimSpace(cfg.MySQL.DSN) == "" {
		return nil, errors.New("mysql.dsn is required")
	}
	e := &engine{log: log}

	rdb, err := redisrepo.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	e.rdb = rdb

	db, err := mysqlrepo.Open(cfg.MySQL.DSN)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.db = db

	var events service.Publisher = pkg.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := pkg.NewKafkaProducer(pkg.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		e.producer = producer
		events = producer
	}

	var locker service.Locker = pkg.NewKeyedMutex()
	if cfg.Cache.DistributedLock {
		locker = redisrepo.NewDistLock(rdb, cfg.Cache.KeyPrefix)
	}

	var alerter service.Alerter
	if len(cfg.Alerts.Recipients) > 0 {
		alerter = pkg.NewMailAlerter(pkg.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, cfg.Alerts.Recipients)
	}

	cache := redisrepo.NewCommunityCache(rdb, cfg.Cache.KeyPrefix)
	remote := mysqlrepo.NewCommunityRepository(db)
	e.pending = redisrepo.NewResyncRepository(rdb, cfg.Cache.KeyPrefix)
	e.queue = service.NewWriteQueue(cache, remote, e.pending, events, log.Named("queue"), cfg.PushTimeout())
	e.store = service.NewStore(cache, remote, locker, e.queue, e.pending, log.Named("store"))

	e.Communities = service.NewCommunityService(e.store, redisrepo.NewAdminRepository(rdb, cfg.Cache.KeyPrefix), log.Named("community"))
	e.Projects = service.NewProjectService(e.store, nil, nil, events, log.Named("project"))
	e.Collab = service.NewCollabService(e.store, nil, nil, events, log.Named("collab"))
	e.Reconciler = service.NewReconciler(e.queue, e.pending, alerter, service.ReconcilerOptions{
		Interval:    cfg.ResyncInterval(),
		BackoffBase: cfg.BackoffBase(),
		BackoffMax:  cfg.BackoffMax(),
		AlertAfter:  cfg.Resync.AlertAfter,
	}, log.Named("resync"))

	log.Info("engine ready",
		zap.String("redis", cfg.Redis.Addr),
		zap.Bool("kafka", cfg.Kafka.Enabled),
		zap.Bool("distributed_lock", cfg.Cache.DistributedLock),
		zap.Int("alert_recipients", len(cfg.Alerts.Recipients)),
	)
	return e, nil
}

// Close 等待在途推送结束后释放连接
func (e *engine) Close() {
	if e.queue != nil {
		e.queue.Wait()
	}
	if e.producer != nil {
		if err := e.producer.Close(); err != nil {
			e.log.Warn("close kafka producer", zap.Error(err))
		}
	}
	if e.db != nil {
		if sqlDB, err := e.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if e.rdb != nil {
		_ = e.rdb.Close()
	}
}
