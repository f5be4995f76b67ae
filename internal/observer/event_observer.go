package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// WorkflowEvent is a single step of a session's capture/detect workflow
type WorkflowEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	SessionID      string                 `json:"session_id"`
	Operation      string                 `json:"operation,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of workflow event
type EventType string

const (
	ImageAcquired       EventType = "image_acquired"
	AcquisitionFailed   EventType = "acquisition_failed"
	AcquisitionCanceled EventType = "acquisition_canceled"
	DetectionStarted    EventType = "detection_started"
	DetectionCompleted  EventType = "detection_completed"
	DetectionFailed     EventType = "detection_failed"
	DetectionDiscarded  EventType = "detection_discarded"
	PermissionRequested EventType = "permission_requested"
	PermissionGranted   EventType = "permission_granted"
	PermissionDenied    EventType = "permission_denied"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event WorkflowEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event WorkflowEvent)
}

// LoggingObserver logs workflow events
type LoggingObserver struct {
	logger *logrus.Logger
}

func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles workflow events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event WorkflowEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"session_id":      event.SessionID,
		"processing_time": event.ProcessingTime,
		"success":         event.Success,
	}
	if event.Operation != "" {
		fields["operation"] = event.Operation
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case ImageAcquired:
		entry.Info("Image acquired")
	case AcquisitionFailed:
		entry.Error("Image acquisition failed")
	case DetectionCompleted:
		entry.Info("Detection completed")
	case DetectionFailed:
		entry.Error("Detection failed")
	case PermissionDenied:
		entry.Warn("Camera permission denied")
	default:
		entry.Debug("Workflow event")
	}
}

func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver counts workflow events per operation
type MetricsObserver struct {
	mu                  sync.RWMutex
	acquisitions        int64
	acquisitionFailures int64
	cancellations       int64
	started             map[string]int64
	completed           map[string]int64
	failed              map[string]int64
	discarded           int64
	permissionDenials   int64
	totalDetectionTime  time.Duration
}

func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{
		started:   make(map[string]int64),
		completed: make(map[string]int64),
		failed:    make(map[string]int64),
	}
}

// OnEvent handles workflow events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event WorkflowEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case ImageAcquired:
		o.acquisitions++
	case AcquisitionFailed:
		o.acquisitionFailures++
	case AcquisitionCanceled:
		o.cancellations++
	case DetectionStarted:
		o.started[event.Operation]++
	case DetectionCompleted:
		o.completed[event.Operation]++
		o.totalDetectionTime += event.ProcessingTime
	case DetectionFailed:
		o.failed[event.Operation]++
	case DetectionDiscarded:
		o.discarded++
	case PermissionDenied:
		o.permissionDenials++
	}
}

func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var completed int64
	for _, n := range o.completed {
		completed += n
	}
	avgDetectionTime := time.Duration(0)
	if completed > 0 {
		avgDetectionTime = o.totalDetectionTime / time.Duration(completed)
	}

	return map[string]interface{}{
		"acquisitions":          o.acquisitions,
		"acquisition_failures":  o.acquisitionFailures,
		"acquisition_cancels":   o.cancellations,
		"detections_started":    copyCounts(o.started),
		"detections_completed":  copyCounts(o.completed),
		"detections_failed":     copyCounts(o.failed),
		"detections_discarded":  o.discarded,
		"permission_denials":    o.permissionDenials,
		"avg_detection_time_ms": avgDetectionTime.Milliseconds(),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to every observer synchronously, in
// subscription order. A panicking observer is logged and skipped.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event WorkflowEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, obs := range observers {
		notifyOne(ctx, obs, event)
	}
}

func notifyOne(ctx context.Context, obs Observer, event WorkflowEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
