package setup

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventType 进度事件类型
type EventType string

const (
	EventPhase    EventType = "phase"
	EventStep     EventType = "step"
	EventProgress EventType = "progress"
	EventLog      EventType = "log"
	EventSuccess  EventType = "success"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event 进度事件，GUI 前端按 JSON 行读取
type Event struct {
	Type     EventType `json:"type"`
	Phase    string    `json:"phase,omitempty"`
	Step     string    `json:"step,omitempty"`
	Message  string    `json:"message"`
	Progress int       `json:"progress,omitempty"` // 0-100
	OpID     string    `json:"op_id,omitempty"`
	Data     any       `json:"data,omitempty"`
	Time     time.Time `json:"time"`
}

// Reporter 进度事件发送器，可并发调用。nil Reporter 丢弃所有事件
type Reporter struct {
	mu   sync.Mutex
	sink func(Event) error
}

// NewJSONReporter 每个事件一行 JSON
func NewJSONReporter(w io.Writer) *Reporter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Reporter{sink: func(e Event) error { return enc.Encode(e) }}
}

// NewFuncReporter 由调用方渲染事件
func NewFuncReporter(fn func(Event)) *Reporter {
	return &Reporter{sink: func(e Event) error {
		fn(e)
		return nil
	}}
}

// Emit 发送事件
func (r *Reporter) Emit(e Event) error {
	if r == nil || r.sink == nil {
		return nil
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink(e)
}

// EmitPhase 发送阶段开始事件
func (r *Reporter) EmitPhase(phase, message string, progress int) error {
	return r.Emit(Event{Type: EventPhase, Phase: phase, Message: message, Progress: progress})
}

// EmitStep 发送步骤事件
func (r *Reporter) EmitStep(phase, step, message string, progress int) error {
	return r.Emit(Event{Type: EventStep, Phase: phase, Step: step, Message: message, Progress: progress})
}

// EmitLog 发送日志事件
func (r *Reporter) EmitLog(message string) error {
	return r.Emit(Event{Type: EventLog, Message: message})
}

// EmitProgress 发送进度更新
func (r *Reporter) EmitProgress(progress int, message string) error {
	return r.Emit(Event{Type: EventProgress, Progress: progress, Message: message})
}

// EmitSuccess 发送成功事件
func (r *Reporter) EmitSuccess(message string, data any) error {
	return r.Emit(Event{Type: EventSuccess, Message: message, Data: data})
}

// EmitError 发送错误事件
func (r *Reporter) EmitError(message string, data any) error {
	return r.Emit(Event{Type: EventError, Message: message, Data: data})
}

// EmitComplete 发送完成事件
func (r *Reporter) EmitComplete(message string, data any) error {
	return r.Emit(Event{Type: EventComplete, Message: message, Data: data})
}
