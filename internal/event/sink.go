package event

import (
	"github.com/genc-murat/tactilesql-scheduler/pkg/logger"
)

// LogSink writes every event to the structured log.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(evt Event) {
	s.log.Info("scheduler event",
		logger.StringField("event_type", string(evt.Type)),
		logger.StringField("scheduler_id", evt.SchedulerID),
		logger.StringField("task_id", evt.TaskID),
		logger.StringField("trigger_id", evt.TriggerID),
		logger.StringField("run_id", evt.RunID),
		logger.Field("payload", evt.Payload),
	)
}

// ChannelSink buffers events for an in-process consumer (the UI layer).
// When the buffer is full the oldest event is dropped so Publish never
// blocks the tick loop.
type ChannelSink struct {
	ch chan Event
}

func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = 64
	}
	return &ChannelSink{ch: make(chan Event, size)}
}

func (s *ChannelSink) Publish(evt Event) {
	for {
		select {
		case s.ch <- evt:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// Events exposes the consumer side of the buffer.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// MultiSink fans an event out to several sinks. Sinks are required to be
// non-blocking, so the fan-out stays synchronous and ordered.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Publish(evt Event) {
	for _, s := range m.sinks {
		s.Publish(evt)
	}
}
