package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/univoice/pkg/call"
	"github.com/harunnryd/univoice/pkg/errorsx"
	"github.com/harunnryd/univoice/pkg/metrics"
	"github.com/harunnryd/univoice/pkg/provider"
	"github.com/harunnryd/univoice/pkg/ticker"
	"github.com/harunnryd/univoice/pkg/transcript"
)

// The functions below run on the loop goroutine only.

func (s *Session) beginStart() (uint64, error) {
	if s.cfg.AssistantID == "" {
		err := errorsx.Wrap(ErrMissingAssistant, errorsx.ReasonConfigMissingAssistant)
		s.log.Error("assistant_id_missing")
		s.setError(err)
		s.record(metrics.EventStartFailed, 0, map[string]string{metrics.TagReason: string(errorsx.ReasonConfigMissingAssistant)}, nil)
		s.publish()
		return 0, err
	}
	if !s.machine.Can(call.TriggerStartRequested) {
		return 0, errorsx.Wrap(ErrCallActive, errorsx.ReasonInvalidTransition)
	}
	s.attempt++
	s.traceID = uuid.NewString()
	s.callID = ""
	s.joinURL = ""
	s.lastErr = nil
	s.fire(call.TriggerStartRequested)
	s.record(metrics.EventStartRequested, 0, nil, nil)
	s.log.Info("call_start_requested", "trace_id", s.traceID)
	s.publish()
	return s.attempt, nil
}

func (s *Session) finishStart(attempt uint64, result provider.Call, err error) error {
	if attempt != s.attempt {
		return err
	}
	switch s.machine.Status() {
	case call.StatusConnecting:
	case call.StatusCalling:
		// call-start overtook the start response.
		if err == nil {
			if s.callID == "" {
				s.callID = result.ID
			}
			s.joinURL = result.JoinURL
			s.publish()
		}
		return err
	case call.StatusIdle:
		// A provider error or the connect timeout already reset the attempt.
		if err == nil {
			go s.stopProvider("stale_start")
		}
		return err
	default:
		return err
	}
	if err != nil {
		s.fire(call.TriggerStartFailed)
		s.setError(err)
		reason := s.lastErr.Reason
		s.record(metrics.EventStartFailed, 0, map[string]string{metrics.TagReason: reason}, map[string]any{"error": err.Error()})
		s.log.Warn("call_start_failed", "reason", reason, "error", err.Error())
		s.publish()
		return err
	}
	if result.ID != "" {
		s.callID = result.ID
	}
	s.joinURL = result.JoinURL
	s.armConnectTimer(attempt)
	s.log.Info("call_connecting", "provider_call_id", s.callID)
	s.publish()
	return nil
}

func (s *Session) armConnectTimer(attempt uint64) {
	s.stopConnectTimer()
	if s.cfg.ConnectTimeout <= 0 {
		return
	}
	s.connectTimer = time.AfterFunc(s.cfg.ConnectTimeout, func() {
		s.post(func() { s.connectExpired(attempt) })
	})
}

func (s *Session) stopConnectTimer() {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
}

func (s *Session) connectExpired(attempt uint64) {
	if attempt != s.attempt || s.machine.Status() != call.StatusConnecting {
		return
	}
	s.connectTimer = nil
	s.fire(call.TriggerProviderError)
	err := errorsx.Wrap(ErrConnectTimeout, errorsx.ReasonConnectTimeout)
	s.setError(err)
	s.record(metrics.EventCallError, 0, map[string]string{metrics.TagReason: string(errorsx.ReasonConnectTimeout)}, nil)
	s.log.Warn("call_connect_timeout", "timeout", s.cfg.ConnectTimeout.String())
	s.publish()
	go s.stopProvider("connect_timeout")
}

func (s *Session) handleEvent(ev provider.Event) {
	if ev.CallID != "" && s.callID != "" && ev.CallID != s.callID {
		s.log.Debug("event_other_call_dropped", "kind", string(ev.Kind), "provider_call_id", ev.CallID)
		return
	}
	switch ev.Kind {
	case provider.EventCallStart:
		s.onCallStart(ev)
	case provider.EventCallEnd:
		s.endCall(call.TriggerCallEnd, "")
	case provider.EventEndOfCallReport:
		reason := ""
		if ev.Report != nil {
			reason = ev.Report.EndedReason
		}
		s.endCall(call.TriggerEndOfCallReport, reason)
		if ev.Report != nil && ev.Report.RecordingURL != "" {
			s.detectLanguage(ev.Report.RecordingURL)
		}
	case provider.EventError:
		s.onProviderError(ev)
	case provider.EventMessage:
		s.onMessage(ev)
	}
}

func (s *Session) onCallStart(ev provider.Event) {
	if _, err := s.machine.Fire(call.TriggerCallStart); err != nil {
		s.log.Debug("call_start_ignored", "status", s.machine.Status().String())
		return
	}
	if s.callID == "" && ev.CallID != "" {
		s.callID = ev.CallID
	}
	s.stopConnectTimer()
	s.startedAt = s.cfg.Now()
	s.duration = 0
	s.agg.Reset()
	s.timer.Start(s.tick)
	s.record(metrics.EventCallStarted, 0, nil, map[string]any{"provider_call_id": s.callID})
	s.log.Info("call_started", "provider_call_id", s.callID)
	s.publish()
}

// endCall moves a calling session to ended. It reports false when no call was active.
func (s *Session) endCall(trigger call.Trigger, endedReason string) bool {
	if s.machine.Status() != call.StatusCalling {
		return false
	}
	s.fire(trigger)
	seconds := s.leaveCalling()
	reason := string(trigger)
	if endedReason != "" {
		reason = endedReason
	}
	s.record(metrics.EventCallEnded, float64(seconds), map[string]string{
		metrics.TagReason:  reason,
		metrics.TagTrigger: string(trigger),
	}, nil)
	s.log.Info("call_ended", "trigger", string(trigger), "reason", reason, "duration", ticker.FormatDuration(seconds))
	s.publish()
	return true
}

func (s *Session) onProviderError(ev provider.Event) {
	status := s.machine.Status()
	if status != call.StatusConnecting && status != call.StatusCalling {
		if ev.Err != nil {
			s.log.Debug("provider_error_ignored", "status", status.String(), "error", ev.Err.Error())
		}
		return
	}
	s.fire(call.TriggerProviderError)
	s.stopConnectTimer()
	if status == call.StatusCalling {
		s.leaveCalling()
	}
	cause := ev.Err
	if cause == nil {
		cause = errors.New("provider reported an error")
	}
	err := errorsx.Wrap(cause, errorsx.ReasonProviderRuntime)
	s.setError(err)
	s.record(metrics.EventCallError, 0, map[string]string{metrics.TagReason: string(errorsx.ReasonProviderRuntime)}, map[string]any{"error": cause.Error()})
	s.log.Error("provider_error", "status", status.String(), "error", cause.Error())
	s.publish()
}

func (s *Session) onMessage(ev provider.Event) {
	if s.machine.Status() != call.StatusCalling {
		return
	}
	entry, ok := s.agg.Consume(ev.Message)
	if !ok {
		return
	}
	s.record(metrics.EventTranscriptEntry, 0, map[string]string{metrics.TagSpeaker: string(entry.Speaker)}, map[string]any{"text": entry.Text})
	s.publish()
}

// tick runs on the timer goroutine.
func (s *Session) tick(gen uint64) {
	s.post(func() {
		if !s.timer.Valid(gen) || s.machine.Status() != call.StatusCalling {
			return
		}
		d := ticker.Elapsed(s.cfg.Now(), s.startedAt)
		if d == s.duration {
			return
		}
		s.duration = d
		s.publish()
	})
}

// leaveCalling stops the timer and returns the final duration.
func (s *Session) leaveCalling() int {
	s.timer.Stop()
	seconds := ticker.Elapsed(s.cfg.Now(), s.startedAt)
	s.startedAt = time.Time{}
	s.duration = 0
	return seconds
}

func (s *Session) detectLanguage(recordingURL string) {
	if s.lang == nil {
		return
	}
	traceID := s.traceID
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.DetectTimeout)
		defer cancel()
		code, err := s.lang.DetectLanguage(ctx, recordingURL)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.log.Warn("language_detect_failed", "error", errorsx.Wrap(err, errorsx.ReasonLanguageDetect).Error())
			}
			return
		}
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			return
		}
		s.post(func() {
			changed := code != s.language
			s.language = code
			s.obs.RecordEvent(metrics.MetricsEvent{
				Name: metrics.EventLanguageDetected,
				Time: s.cfg.Now(),
				Tags: map[string]string{
					metrics.TagCallID:   traceID,
					metrics.TagProvider: s.client.Name(),
				},
				Fields: map[string]any{"language": code},
			})
			if changed {
				s.log.Info("language_detected", "language", code)
				s.publish()
			}
		})
	}()
}

// stopProvider tears down a provider call nobody is waiting on.
func (s *Session) stopProvider(reason string) {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	if s.closed.Load() {
		// The session context is gone; still try to release the remote call.
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	if err := s.client.Stop(ctx); err != nil {
		s.log.Warn("provider_stop_failed", "reason", reason, "error", err.Error())
	}
}

func (s *Session) fire(trigger call.Trigger) {
	if _, err := s.machine.Fire(trigger); err != nil {
		s.log.Debug("transition_ignored", "trigger", string(trigger), "reason_code", string(errorsx.ReasonInvalidTransition), "error", err.Error())
	}
}

// logTransition is the machine listener; it runs on whichever goroutine fired.
func (s *Session) logTransition(change call.StateChange) {
	s.log.Debug("transition", "from", change.From.String(), "to", change.To.String(), "trigger", string(change.Trigger))
}

func (s *Session) setError(err error) {
	if err == nil {
		s.lastErr = nil
		return
	}
	reason, msg := errorsx.Describe(err)
	s.lastErr = &ErrorInfo{Reason: string(reason), Message: msg, At: s.cfg.Now()}
}

func (s *Session) record(name string, value float64, tags map[string]string, fields map[string]any) {
	all := map[string]string{
		metrics.TagCallID:   s.traceID,
		metrics.TagProvider: s.client.Name(),
	}
	for k, v := range tags {
		all[k] = v
	}
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name:   name,
		Time:   s.cfg.Now(),
		Value:  value,
		Tags:   all,
		Fields: fields,
	})
}

func (s *Session) publish() {
	s.version++
	status := s.machine.Status()
	snap := Snapshot{
		Version:         s.version,
		Status:          status,
		CallID:          s.callID,
		JoinURL:         s.joinURL,
		DurationSeconds: s.duration,
		Duration:        ticker.FormatDuration(s.duration),
		ShowDuration:    status == call.StatusCalling,
		Language:        s.language,
		Transcript:      s.agg.Log().Entries(),
		Button:          ButtonFor(status),
		LastError:       s.lastErr,
	}
	if !s.startedAt.IsZero() {
		at := s.startedAt
		snap.StartedAt = &at
	}
	if snap.Transcript == nil {
		snap.Transcript = []transcript.Entry{}
	}
	if s.lastErr != nil {
		info := *s.lastErr
		snap.LastError = &info
	}

	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()

	s.watchMu.Lock()
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
	s.watchMu.Unlock()
}
