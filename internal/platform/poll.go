package platform

import (
	"context"
	"os"
	"time"

	"openclawsetup/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// Probe 判断等待的事情是否已经完成
type Probe func(ctx context.Context) bool

// WaitOutcome 轮询结果
type WaitOutcome int

const (
	Completed WaitOutcome = iota
	// StillInProgress 超时但外部进程可能仍在运行，不是错误
	StillInProgress
)

func (o WaitOutcome) String() string {
	if o == Completed {
		return "completed"
	}
	return "still_in_progress"
}

// WaitOptions 轮询参数
type WaitOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// WatchDirs 中的文件变化会触发一次提前检测
	WatchDirs []string
}

func (o WaitOptions) normalized() WaitOptions {
	if o.Interval <= 0 {
		o.Interval = 3 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Minute
	}
	return o
}

// Poll 按固定间隔检测 probe，直到成功或超时。
// 超时与 ctx 取消都返回 StillInProgress，被等待的进程与轮询相互独立
func Poll(ctx context.Context, probe Probe, opts WaitOptions) WaitOutcome {
	opts = opts.normalized()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if len(opts.WatchDirs) > 0 {
		if w, err := fsnotify.NewWatcher(); err == nil {
			defer w.Close()
			watched := 0
			for _, dir := range opts.WatchDirs {
				if info, err := os.Stat(dir); err == nil && info.IsDir() {
					if w.Add(dir) == nil {
						watched++
					}
				}
			}
			if watched > 0 {
				events = w.Events
				errs = w.Errors
			}
		}
	}
	return pollLoop(ctx, probe, opts, events, errs)
}

// pollLoop 必须持续读取 errs，fsnotify 的错误无人接收时会阻塞事件读取
func pollLoop(ctx context.Context, probe Probe, opts WaitOptions, events <-chan fsnotify.Event, errs <-chan error) WaitOutcome {
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return StillInProgress
		case <-deadline.C:
			if probe(ctx) {
				return Completed
			}
			return StillInProgress
		case <-ticker.C:
			if probe(ctx) {
				return Completed
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Platform.Debug().Err(err).Msg("文件监听出错，继续按间隔轮询")
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if probe(ctx) {
				return Completed
			}
		}
	}
}
