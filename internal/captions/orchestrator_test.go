package captions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lexiqai/caption-gateway/internal/pipeline"
	"github.com/lexiqai/caption-gateway/internal/recognition"
	"github.com/lexiqai/caption-gateway/internal/session"
	"github.com/lexiqai/caption-gateway/internal/simplify"
	"github.com/lexiqai/caption-gateway/internal/translation"
)

type emitted struct {
	event   string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
	notify chan struct{}
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{notify: make(chan struct{}, 256)}
}

func (e *recordingEmitter) Emit(event string, payload any) error {
	e.mu.Lock()
	e.events = append(e.events, emitted{event: event, payload: payload})
	e.mu.Unlock()
	select {
	case e.notify <- struct{}{}:
	default:
	}
	return nil
}

func (e *recordingEmitter) snapshot() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emitted(nil), e.events...)
}

func (e *recordingEmitter) waitFor(t *testing.T, n int) []emitted {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := e.snapshot(); len(got) >= n {
			return got
		}
		select {
		case <-e.notify:
		case <-deadline:
			t.Fatalf("Timed out waiting for %d events, got %v", n, e.snapshot())
		}
	}
}

// scriptedEngine emits one final transcript per chunk from a script and can
// fail the stream after a number of chunks
type scriptedEngine struct {
	script    []string
	failAfter int
	openErr   error
}

func (e *scriptedEngine) Name() string { return "scripted" }

func (e *scriptedEngine) Open(ctx context.Context, cfg recognition.Config) (recognition.Stream, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	s := &scriptedStream{engine: e, results: make(chan recognition.Result, 16)}
	go func() {
		<-ctx.Done()
		s.finish(nil)
	}()
	return s, nil
}

type scriptedStream struct {
	engine  *scriptedEngine
	results chan recognition.Result

	mu     sync.Mutex
	chunks int
	done   bool
	err    error
}

func (s *scriptedStream) Send(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return recognition.ErrSendClosed
	}
	s.chunks++
	n := s.chunks

	if s.engine.failAfter > 0 && n >= s.engine.failAfter {
		s.finishLocked(errors.New("upstream reset"))
		return nil
	}
	if n <= len(s.engine.script) {
		s.results <- recognition.Result{Transcript: s.engine.script[n-1], IsFinal: true, Confidence: 0.9}
	}
	return nil
}

func (s *scriptedStream) CloseSend() error {
	s.finish(nil)
	return nil
}

func (s *scriptedStream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(err)
}

func (s *scriptedStream) finishLocked(err error) {
	if s.done {
		return
	}
	s.done = true
	s.err = err
	close(s.results)
}

func (s *scriptedStream) Results() <-chan recognition.Result { return s.results }

func (s *scriptedStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

type failingTranslator struct{}

func (failingTranslator) Name() string { return "failing" }

func (failingTranslator) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	return "", errors.New("quota exceeded")
}

func testOptions() Options {
	return Options{
		SampleRate:  16000,
		PopTimeout:  20 * time.Millisecond,
		StopTimeout: time.Second,
		TaskTimeout: time.Second,
	}
}

func newTestOrchestrator(engine recognition.Engine, tr translation.Translator) *Orchestrator {
	p := pipeline.New(tr, simplify.NewRuleSimplifier(), time.Second)
	return New(engine, p, testOptions())
}

func chunk() []byte {
	return make([]byte, 640)
}

func boolPtr(b bool) *bool { return &b }

func TestOrchestrator_EndToEnd(t *testing.T) {
	engine := &scriptedEngine{script: []string{"hello how are you"}}
	o := newTestOrchestrator(engine, translation.NewStubTranslator(nil))
	em := newRecordingEmitter()

	id, err := o.Start("c1", em, StartRequest{SourceLanguage: "en-IN", TargetLanguage: "hi", Simplify: boolPtr(true)})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !o.Feed(id, chunk()) {
		t.Fatal("Expected chunk to be accepted")
	}

	got := em.waitFor(t, 4)
	if got[0].event != EventStreamStarted || got[0].payload.(StreamStarted).SessionID != id {
		t.Fatalf("Expected stream_started first, got %+v", got[0])
	}

	result, ok := got[1].payload.(CaptionResult)
	if got[1].event != EventCaptionResult || !ok {
		t.Fatalf("Expected caption_result, got %+v", got[1])
	}
	if result.Original != "hello how are you" || result.ID == "" {
		t.Errorf("Unexpected caption %+v", result)
	}
	if result.Timestamp <= 0 {
		t.Errorf("Expected a timestamp, got %v", result.Timestamp)
	}

	translated, ok := got[2].payload.(TranslatedUpdate)
	if !ok || translated.ID != result.ID || translated.Translated != "नमस्ते, आप कैसे हैं?" {
		t.Errorf("Unexpected translated update %+v", got[2])
	}
	simplified, ok := got[3].payload.(SimplifiedUpdate)
	if !ok || simplified.ID != result.ID || simplified.Simplified == "" {
		t.Errorf("Unexpected simplified update %+v", got[3])
	}

	if !o.Stop(id) {
		t.Fatal("Expected stop to tear down")
	}
	final := em.snapshot()
	if last := final[len(final)-1]; last.event != EventStreamStopped {
		t.Errorf("Expected stream_stopped last, got %s", last.event)
	}
	if o.ActiveSessions() != 0 {
		t.Errorf("Expected no sessions, got %d", o.ActiveSessions())
	}
}

func TestOrchestrator_SimplifyDisabled(t *testing.T) {
	engine := &scriptedEngine{script: []string{"thank you"}}
	o := newTestOrchestrator(engine, translation.NewStubTranslator(nil))
	em := newRecordingEmitter()

	id, _ := o.Start("c1", em, StartRequest{TargetLanguage: "hi", Simplify: boolPtr(false)})
	o.Feed(id, chunk())
	em.waitFor(t, 3)
	o.Stop(id)

	for _, ev := range em.snapshot() {
		if _, ok := ev.payload.(SimplifiedUpdate); ok {
			t.Error("Expected no simplified update")
		}
	}
}

func TestOrchestrator_DefaultsApplied(t *testing.T) {
	req := StartRequest{}.withDefaults()
	if req.SourceLanguage != "en-IN" || req.TargetLanguage != "hi" {
		t.Errorf("Unexpected language defaults %+v", req)
	}
	if req.Simplify == nil || !*req.Simplify {
		t.Error("Expected simplify to default on")
	}
	if req.SimplificationLevel != "medium" {
		t.Errorf("Expected medium level, got %s", req.SimplificationLevel)
	}
}

func TestOrchestrator_TranslationFailureFallsBack(t *testing.T) {
	engine := &scriptedEngine{script: []string{"hello there"}}
	o := newTestOrchestrator(engine, failingTranslator{})
	em := newRecordingEmitter()

	id, _ := o.Start("c1", em, StartRequest{Simplify: boolPtr(false)})
	o.Feed(id, chunk())
	got := em.waitFor(t, 3)
	o.Stop(id)

	translated, ok := got[2].payload.(TranslatedUpdate)
	if !ok || translated.Translated != "hello there" {
		t.Errorf("Expected original text as fallback, got %+v", got[2])
	}
}

func TestOrchestrator_DoubleStop(t *testing.T) {
	o := newTestOrchestrator(&scriptedEngine{}, translation.NewStubTranslator(nil))
	em := newRecordingEmitter()
	id, _ := o.Start("c1", em, StartRequest{})

	if !o.Stop(id) {
		t.Fatal("Expected first stop to succeed")
	}
	if o.Stop(id) {
		t.Error("Expected second stop to be a no-op")
	}
	stopped := 0
	for _, ev := range em.snapshot() {
		if ev.event == EventStreamStopped {
			stopped++
		}
	}
	if stopped != 1 {
		t.Errorf("Expected one stream_stopped, got %d", stopped)
	}
	if o.State(id) != session.StateAbsent {
		t.Errorf("Expected absent, got %s", o.State(id))
	}
}

func TestOrchestrator_FeedDrops(t *testing.T) {
	o := newTestOrchestrator(&scriptedEngine{}, translation.NewStubTranslator(nil))
	if o.Feed("missing", chunk()) {
		t.Error("Expected feed on unknown session to be dropped")
	}

	id, _ := o.Start("c1", newRecordingEmitter(), StartRequest{})
	defer o.Stop(id)
	if o.Feed(id, []byte{1, 2, 3}) {
		t.Error("Expected odd-length chunk to be dropped")
	}
	if o.Feed(id, nil) {
		t.Error("Expected empty chunk to be dropped")
	}
}

func TestOrchestrator_DisconnectStopsOwnedSessions(t *testing.T) {
	o := newTestOrchestrator(&scriptedEngine{}, translation.NewStubTranslator(nil))
	em1 := newRecordingEmitter()
	em2 := newRecordingEmitter()

	a, _ := o.Start("c1", em1, StartRequest{})
	b, _ := o.Start("c1", em1, StartRequest{TargetLanguage: "ta"})
	other, _ := o.Start("c2", em2, StartRequest{})
	defer o.Stop(other)

	if n := o.Disconnect("c1"); n != 2 {
		t.Fatalf("Expected 2 sessions stopped, got %d", n)
	}
	if o.State(a) != session.StateAbsent || o.State(b) != session.StateAbsent {
		t.Error("Expected disconnected sessions to be absent")
	}
	if o.State(other) == session.StateAbsent {
		t.Error("Expected other connection's session to survive")
	}

	before := len(em1.snapshot())
	if o.Feed(a, chunk()) {
		t.Error("Expected feed after disconnect to be dropped")
	}
	time.Sleep(50 * time.Millisecond)
	if after := len(em1.snapshot()); after != before {
		t.Errorf("Expected no events after disconnect, got %d more", after-before)
	}
}

func TestOrchestrator_UpstreamErrorEndsSession(t *testing.T) {
	engine := &scriptedEngine{failAfter: 1}
	o := newTestOrchestrator(engine, translation.NewStubTranslator(nil))
	em := newRecordingEmitter()

	id, _ := o.Start("c1", em, StartRequest{})
	o.Feed(id, chunk())

	got := em.waitFor(t, 2)
	last := got[len(got)-1]
	payload, ok := last.payload.(ErrorPayload)
	if last.event != EventError || !ok || payload.SessionID != id {
		t.Fatalf("Expected session error last, got %+v", last)
	}

	deadline := time.Now().Add(time.Second)
	for o.State(id) != session.StateAbsent && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if o.State(id) != session.StateAbsent {
		t.Errorf("Expected session removed after upstream error, got %s", o.State(id))
	}
	if o.Stop(id) {
		t.Error("Expected stop after upstream teardown to be a no-op")
	}
}

func TestOrchestrator_OpenFailure(t *testing.T) {
	engine := &scriptedEngine{openErr: errors.New("unauthorized")}
	o := newTestOrchestrator(engine, translation.NewStubTranslator(nil))
	em := newRecordingEmitter()

	id, err := o.Start("c1", em, StartRequest{})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	got := em.waitFor(t, 2)
	if got[1].event != EventError {
		t.Errorf("Expected error event, got %s", got[1].event)
	}
	if p, ok := got[1].payload.(ErrorPayload); !ok || p.SessionID != id {
		t.Errorf("Expected error scoped to session, got %+v", got[1].payload)
	}
}

func TestOrchestrator_StandInEngine(t *testing.T) {
	o := newTestOrchestrator(recognition.NewStandInEngine(5), translation.NewStubTranslator(nil))
	em := newRecordingEmitter()

	id, _ := o.Start("c1", em, StartRequest{Simplify: boolPtr(false)})
	for i := 0; i < 5; i++ {
		o.Feed(id, chunk())
	}
	got := em.waitFor(t, 3)
	o.Stop(id)

	result, ok := got[1].payload.(CaptionResult)
	if !ok || result.Original != "[Offline] Test transcript 5" {
		t.Fatalf("Unexpected stand-in caption %+v", got[1])
	}
	if result.Confidence != 0.95 {
		t.Errorf("Expected confidence 0.95, got %v", result.Confidence)
	}
	translated := got[2].payload.(TranslatedUpdate)
	if translated.Translated != fmt.Sprintf("[hi] %s", result.Original) {
		t.Errorf("Unexpected stub translation %q", translated.Translated)
	}
}

func TestOrchestrator_Shutdown(t *testing.T) {
	o := newTestOrchestrator(&scriptedEngine{}, translation.NewStubTranslator(nil))
	for i := 0; i < 3; i++ {
		o.Start(fmt.Sprintf("c%d", i), newRecordingEmitter(), StartRequest{})
	}
	o.Shutdown()
	if o.ActiveSessions() != 0 {
		t.Errorf("Expected all sessions stopped, got %d", o.ActiveSessions())
	}
}

func counterValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestOrchestrator_FeedRecordsAudioMetrics(t *testing.T) {
	o := newTestOrchestrator(&scriptedEngine{}, translation.NewStubTranslator(nil))
	if o.EngineName() != "scripted" {
		t.Errorf("Expected scripted engine, got %s", o.EngineName())
	}
	id, _ := o.Start("c1", newRecordingEmitter(), StartRequest{})
	defer o.Stop(id)

	silentBefore := counterValue(t, "caption_gateway_audio_silent_chunks_total")
	secondsBefore := counterValue(t, "caption_gateway_audio_seconds_total")

	// 640 zero bytes is 20ms of silence at 16kHz
	if !o.Feed(id, chunk()) {
		t.Fatal("Expected silent chunk to be accepted")
	}

	if got := counterValue(t, "caption_gateway_audio_silent_chunks_total") - silentBefore; got != 1 {
		t.Errorf("Expected one silent chunk counted, got %v", got)
	}
	if got := counterValue(t, "caption_gateway_audio_seconds_total") - secondsBefore; got < 0.019 || got > 0.021 {
		t.Errorf("Expected about 0.02s of audio, got %v", got)
	}
}
