package services

import (
	"context"
	"sync"
	"time"

	"blogsphere/internal/repository"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	reconcileBatchSize = 50
	reconcileInterval  = 500 * time.Millisecond
)

// Reconciler 根据评论记录重算文章的评论计数器。
// 写入在非事务存储上中途失败时按需入队，另有定时任务全量校对。
type Reconciler struct {
	store   repository.Store
	log     *zap.Logger
	queue   chan string // 待校对的 Blog ID
	pending map[string]bool
	mu      sync.Mutex

	cron    *cron.Cron
	started bool
	stop    chan struct{}
	done    chan struct{}
}

func NewReconciler(store repository.Store, log *zap.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		log:     log,
		queue:   make(chan string, 1000),
		pending: make(map[string]bool),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start 启动后台 worker
func (r *Reconciler) Start() {
	r.started = true
	go r.worker()
}

// StartCron 按 spec 定时全量校对，例如 "0 3 * * *"
func (r *Reconciler) StartCron(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		r.log.Info("scheduled reconcile started")
		n, err := r.ReconcileAll(ctx)
		if err != nil {
			r.log.Error("scheduled reconcile failed", zap.Int("blogs", n), zap.Error(err))
			return
		}
		r.log.Info("scheduled reconcile finished", zap.Int("blogs", n))
	})
	if err != nil {
		return err
	}
	r.cron = c
	c.Start()
	return nil
}

// Stop 停止定时任务并处理完队列中剩余的请求
func (r *Reconciler) Stop(ctx context.Context) {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	if !r.started {
		return
	}
	close(r.stop)
	select {
	case <-r.done:
	case <-ctx.Done():
	}
}

// ScheduleReconcile 将文章加入校对队列（异步），已在队列中的直接跳过
func (r *Reconciler) ScheduleReconcile(blogID string) {
	r.mu.Lock()
	if r.pending[blogID] {
		r.mu.Unlock()
		return
	}
	r.pending[blogID] = true
	r.mu.Unlock()

	select {
	case r.queue <- blogID:
	default:
		r.mu.Lock()
		delete(r.pending, blogID)
		r.mu.Unlock()
		r.log.Warn("reconcile queue is full, dropping blog", zap.String("blog", blogID))
	}
}

func (r *Reconciler) worker() {
	defer close(r.done)

	batch := make([]string, 0, reconcileBatchSize)
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case blogID := <-r.queue:
			batch = append(batch, blogID)
			if len(batch) >= reconcileBatchSize {
				r.processBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.processBatch(batch)
				batch = batch[:0]
			}
		case <-r.stop:
			// 排空队列后退出
			for {
				select {
				case blogID := <-r.queue:
					batch = append(batch, blogID)
				default:
					r.processBatch(batch)
					return
				}
			}
		}
	}
}

func (r *Reconciler) processBatch(blogIDs []string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for _, blogID := range blogIDs {
		if err := r.ReconcileBlog(ctx, blogID); err != nil {
			r.log.Error("reconcile blog failed", zap.String("blog", blogID), zap.Error(err))
		}
		r.mu.Lock()
		delete(r.pending, blogID)
		r.mu.Unlock()
	}
}

// ReconcileBlog 同步重算单篇文章的 total_comments 和 total_parent_comments
func (r *Reconciler) ReconcileBlog(ctx context.Context, blogID string) error {
	return r.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return tx.Blogs().RecountComments(ctx, blogID)
	})
}

// ReconcileAll 校对所有文章，返回成功处理的数量
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := r.store.Blogs().ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if err := r.ReconcileBlog(ctx, id); err != nil {
			r.log.Warn("reconcile blog failed", zap.String("blog", id), zap.Error(err))
			continue
		}
		count++
	}
	return count, nil
}
