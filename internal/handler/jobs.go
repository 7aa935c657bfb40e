package handler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// JobStatus 后台任务状态
type JobStatus struct {
	Name       string     `json:"name"`
	Running    bool       `json:"running"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Result     any        `json:"result,omitempty"`
}

var errPanic = errors.New("job panicked")

// jobRunner 同名任务同一时间只允许运行一个
type jobRunner struct {
	ctx    context.Context
	mu     sync.Mutex
	jobs   map[string]*JobStatus
	wg     sync.WaitGroup
	logger zerolog.Logger
}

func newJobRunner(ctx context.Context, logger zerolog.Logger) *jobRunner {
	return &jobRunner{
		ctx:    ctx,
		jobs:   make(map[string]*JobStatus),
		logger: logger,
	}
}

// start 已有同名任务在运行时返回 false
func (r *jobRunner) start(name string, fn func(ctx context.Context) (any, error)) bool {
	r.mu.Lock()
	if st, ok := r.jobs[name]; ok && st.Running {
		r.mu.Unlock()
		return false
	}
	r.jobs[name] = &JobStatus{Name: name, Running: true, StartedAt: time.Now()}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		var (
			result any
			err    error
		)
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error().Str("job", name).Interface("panic", p).Msg("后台任务发生恐慌")
					err = errPanic
				}
			}()
			result, err = fn(r.ctx)
		}()

		now := time.Now()
		r.mu.Lock()
		st := r.jobs[name]
		st.Running = false
		st.FinishedAt = &now
		if err != nil {
			st.Error = err.Error()
		} else {
			st.Result = result
		}
		r.mu.Unlock()

		if err != nil {
			r.logger.Error().Str("job", name).Err(err).Msg("后台任务失败")
		} else {
			r.logger.Info().Str("job", name).Dur("duration", now.Sub(st.StartedAt)).Msg("后台任务完成")
		}
	}()
	return true
}

// snapshot 所有任务状态的副本
func (r *jobRunner) snapshot() []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobStatus, 0, len(r.jobs))
	for _, st := range r.jobs {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *jobRunner) wait() {
	r.wg.Wait()
}
