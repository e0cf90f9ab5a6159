// Package hooks is the host-facing entry point of the learning core. Hosts
// bracket their own operations with Begin/Complete calls; each Complete turns
// into exactly one activity for the learning system. Nothing here ever
// returns an error or panics into the host's operation.
package hooks

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nvandessel/selfcorrect/internal/logging"
	"github.com/nvandessel/selfcorrect/internal/models"
	"github.com/nvandessel/selfcorrect/internal/sanitize"
)

// Sink receives completed activities.
type Sink interface {
	Observe(ctx context.Context, t models.ActivityType, data models.ActivityData) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, t models.ActivityType, data models.ActivityData) error

// Observe implements Sink.
func (f SinkFunc) Observe(ctx context.Context, t models.ActivityType, data models.ActivityData) error {
	return f(ctx, t, data)
}

// Marker is returned by the Begin calls and handed back to Complete so the
// activity carries an accurate duration.
type Marker struct {
	Start time.Time

	Command     string
	TemplateID  string
	MechanismID string
	Operation   string
	Parameters  map[string]any
	Context     map[string]any
}

// CommandResult is the outcome of a host command.
type CommandResult struct {
	ExitCode   int
	Output     any
	Err        error
	Correction *models.CorrectionDescriptor
}

// RunResult is the outcome of a template instantiation or mechanism run.
type RunResult struct {
	Success    bool
	Errors     []string
	Output     any
	Correction *models.CorrectionDescriptor
}

// Collector turns host calls into activities.
type Collector struct {
	sink    Sink
	logger  *zap.Logger
	enabled atomic.Bool
	now     func() time.Time
}

// NewCollector returns an enabled collector forwarding to sink.
func NewCollector(sink Sink, logger *zap.Logger) *Collector {
	c := &Collector{
		sink:   sink,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
	c.enabled.Store(true)
	return c
}

// SetClock replaces the collector's time source.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// Enable turns learning on.
func (c *Collector) Enable() {
	c.enabled.Store(true)
	c.logger.Info("self-correction learning enabled")
}

// Disable turns learning off. Calls made while disabled are dropped without
// touching the sink.
func (c *Collector) Disable() {
	c.enabled.Store(false)
	c.logger.Info("self-correction learning disabled")
}

// Enabled reports whether learning is on.
func (c *Collector) Enabled() bool {
	return c.enabled.Load()
}

// BeginCommand marks the start of a host command.
func (c *Collector) BeginCommand(command string, hostContext map[string]any) Marker {
	return Marker{Start: c.now(), Command: command, Context: hostContext}
}

// CompleteCommand records the command started at m.
func (c *Collector) CompleteCommand(ctx context.Context, m Marker, res CommandResult) {
	data := models.ActivityData{
		Command:    sanitize.Text(m.Command),
		ExitCode:   res.ExitCode,
		Output:     res.Output,
		Duration:   c.elapsed(m),
		Context:    m.Context,
		Success:    models.Bool(res.ExitCode == 0 && res.Err == nil),
		Correction: res.Correction,
	}
	if res.Err != nil {
		data.Error = models.ErrorText(sanitize.Text(res.Err.Error()))
	}
	c.forward(ctx, models.ActivityCommand, data)
}

// BeginTemplate marks the start of a template instantiation.
func (c *Collector) BeginTemplate(templateID string, parameters, hostContext map[string]any) Marker {
	return Marker{Start: c.now(), TemplateID: templateID, Parameters: parameters, Context: hostContext}
}

// CompleteTemplate records the instantiation started at m.
func (c *Collector) CompleteTemplate(ctx context.Context, m Marker, res RunResult) {
	c.forward(ctx, models.ActivityTemplate, models.ActivityData{
		TemplateID: sanitize.Text(m.TemplateID),
		Parameters: m.Parameters,
		Context:    m.Context,
		Errors:     sanitizeAll(res.Errors),
		Output:     res.Output,
		Duration:   c.elapsed(m),
		Success:    models.Bool(res.Success),
		Correction: res.Correction,
	})
}

// BeginMechanism marks the start of a mechanism operation.
func (c *Collector) BeginMechanism(mechanismID, operation string, parameters, hostContext map[string]any) Marker {
	return Marker{
		Start:       c.now(),
		MechanismID: mechanismID,
		Operation:   operation,
		Parameters:  parameters,
		Context:     hostContext,
	}
}

// CompleteMechanism records the operation started at m.
func (c *Collector) CompleteMechanism(ctx context.Context, m Marker, res RunResult) {
	c.forward(ctx, models.ActivityMechanism, models.ActivityData{
		MechanismID: sanitize.Text(m.MechanismID),
		Operation:   sanitize.Text(m.Operation),
		Parameters:  m.Parameters,
		Context:     m.Context,
		Errors:      sanitizeAll(res.Errors),
		Output:      res.Output,
		Duration:    c.elapsed(m),
		Success:     models.Bool(res.Success),
		Correction:  res.Correction,
	})
}

// ReportUserFeedback records feedback from the user. Feedback is always a
// successful activity; negative feedback types are diagnosed as issues.
func (c *Collector) ReportUserFeedback(ctx context.Context, feedbackType, feedback string, hostContext map[string]any) {
	c.forward(ctx, models.ActivityFeedback, models.ActivityData{
		FeedbackType: sanitize.Text(feedbackType),
		Feedback:     sanitize.Text(feedback),
		Context:      hostContext,
		Success:      models.Bool(true),
	})
}

// ReportPerformanceMetric records a measurement against its threshold.
func (c *Collector) ReportPerformanceMetric(ctx context.Context, metricType string, value, threshold float64, hostContext map[string]any) {
	exceeded := value > threshold
	c.forward(ctx, models.ActivityPerformance, models.ActivityData{
		MetricType:  sanitize.Text(metricType),
		MetricValue: value,
		Threshold:   threshold,
		Exceeded:    exceeded,
		Context:     hostContext,
		Success:     models.Bool(!exceeded),
	})
}

// TriggerEmergencyCorrection feeds data through the learning system marked
// as an emergency.
func (c *Collector) TriggerEmergencyCorrection(ctx context.Context, t models.ActivityType, data models.ActivityData) {
	c.logger.Warn("emergency correction triggered", zap.String("type", string(t)))
	data.Emergency = true
	c.forward(ctx, t, data)
}

func (c *Collector) elapsed(m Marker) int64 {
	if m.Start.IsZero() {
		return 0
	}
	d := c.now().Sub(m.Start)
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

// forward hands one activity to the sink, swallowing errors and panics.
func (c *Collector) forward(ctx context.Context, t models.ActivityType, data models.ActivityData) {
	if !c.Enabled() || c.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("learning sink panicked", zap.String("type", string(t)), zap.Any("panic", r))
		}
	}()
	if err := c.sink.Observe(ctx, t, data); err != nil {
		c.logger.Warn("learning failed", zap.String("type", string(t)), zap.Error(err))
	}
}

func sanitizeAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = sanitize.Text(s)
	}
	return out
}
