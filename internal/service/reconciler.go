package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"Showtimes_Sync/internal/model"
)

type ReconcilerOptions struct {
	Interval    time.Duration
	BackoffBase time.Duration // 0 表示每个 tick 都重试
	BackoffMax  time.Duration
	AlertAfter  int // 连续失败次数达到该值时告警一次，0 表示不告警
}

// TickResult 一次对账的结果
type TickResult struct {
	Pushed  []uint64
	Failed  []uint64
	Skipped []uint64 // 还没到下次重试时间
	Dropped []uint64 // 社区已被注销
}

// Reconciler 定时把待重推集合中的社区重新推送到远端，成功后移出集合
type Reconciler struct {
	queue   *WriteQueue
	pending PendingSet
	alerter Alerter
	opts    ReconcilerOptions
	now     func() time.Time
	log     *zap.Logger
}

func NewReconciler(queue *WriteQueue, pending PendingSet, alerter Alerter, opts ReconcilerOptions, log *zap.Logger) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		queue:   queue,
		pending: pending,
		alerter: alerter,
		opts:    opts,
		now:     time.Now,
		log:     log,
	}
}

// Run 启动对账循环，ctx 取消时退出
func (r *Reconciler) Run(ctx context.Context) {
	t := time.NewTicker(r.opts.Interval)
	defer t.Stop()
	r.log.Info("resync reconciler started", zap.Duration("interval", r.opts.Interval))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("resync reconciler stopped")
			return
		case <-t.C:
			res, err := r.Tick(ctx)
			if err != nil {
				r.log.Error("resync tick failed", zap.Error(err))
				continue
			}
			if len(res.Pushed)+len(res.Failed) > 0 {
				r.log.Info("resync tick",
					zap.Int("pushed", len(res.Pushed)),
					zap.Int("failed", len(res.Failed)),
					zap.Int("skipped", len(res.Skipped)),
				)
			}
		}
	}
}

// Tick 处理一轮待重推集合，遵守每个条目的退避时间
func (r *Reconciler) Tick(ctx context.Context) (TickResult, error) {
	return r.drain(ctx, false)
}

// Flush 忽略退避立即重推全部条目
func (r *Reconciler) Flush(ctx context.Context) (TickResult, error) {
	return r.drain(ctx, true)
}

func (r *Reconciler) drain(ctx context.Context, force bool) (TickResult, error) {
	var res TickResult
	entries, err := r.pending.Entries(ctx)
	if err != nil {
		return res, err
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		now := r.now()
		if !force && now.Before(entry.NextAttempt) {
			res.Skipped = append(res.Skipped, entry.CommunityID)
			continue
		}
		id := entry.CommunityID
		var failedEntry *model.ResyncEntry
		err := r.queue.withPushLock(ctx, id, func() error {
			err := r.queue.push(ctx, id)
			switch {
			case err == nil:
				res.Pushed = append(res.Pushed, id)
				return r.pending.Remove(ctx, id)
			case errors.Is(err, errRecordGone):
				res.Dropped = append(res.Dropped, id)
				return r.pending.Remove(ctx, id)
			}
			res.Failed = append(res.Failed, id)
			next := r.fail(ctx, entry, err, now)
			failedEntry = &next
			return r.pending.Update(ctx, next)
		})
		if err != nil {
			r.log.Error("resync entry update failed", zap.Uint64("community_id", id), zap.Error(err))
		}
		if failedEntry != nil {
			r.log.Error("remote push failed",
				zap.Uint64("community_id", id),
				zap.Int("attempts", failedEntry.Attempts),
				zap.String("error", failedEntry.LastError),
			)
		}
	}
	return res, nil
}

// fail 记录一次失败：累加次数、计算下次重试时间，达到阈值时告警
func (r *Reconciler) fail(ctx context.Context, entry model.ResyncEntry, cause error, now time.Time) model.ResyncEntry {
	entry.Attempts++
	entry.LastError = cause.Error()
	entry.NextAttempt = now.Add(r.backoff(entry.Attempts)).UTC()
	if r.opts.AlertAfter > 0 && entry.Attempts >= r.opts.AlertAfter && !entry.Alerted {
		r.log.Error("community stuck in resync",
			zap.Uint64("community_id", entry.CommunityID),
			zap.Int("attempts", entry.Attempts),
			zap.Time("first_failure", entry.FirstFailure),
		)
		if r.alerter != nil {
			if err := r.alerter.Alert(ctx, entry); err != nil {
				r.log.Warn("send resync alert failed", zap.Uint64("community_id", entry.CommunityID), zap.Error(err))
			} else {
				entry.Alerted = true
			}
		} else {
			entry.Alerted = true
		}
	}
	return entry
}

// backoff base * 2^(attempts-1)，上限 BackoffMax
func (r *Reconciler) backoff(attempts int) time.Duration {
	base := r.opts.BackoffBase
	if base <= 0 || attempts <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if r.opts.BackoffMax > 0 && d >= r.opts.BackoffMax {
			return r.opts.BackoffMax
		}
		if d <= 0 {
			// 溢出
			return r.opts.BackoffMax
		}
	}
	if r.opts.BackoffMax > 0 && d > r.opts.BackoffMax {
		return r.opts.BackoffMax
	}
	return d
}

// Pending 当前待重推的条目
func (r *Reconciler) Pending(ctx context.Context) ([]model.ResyncEntry, error) {
	return r.pending.Entries(ctx)
}
