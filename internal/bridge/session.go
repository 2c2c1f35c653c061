// Package bridge is the entry point a turn-based host drives: synchronous
// and background queries, a one-query-per-turn gate and the response queue
// the host polls each turn.
package bridge

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/HexSleeves/turnbridge/internal/bus"
	"github.com/HexSleeves/turnbridge/internal/config"
	"github.com/HexSleeves/turnbridge/internal/job"
	"github.com/HexSleeves/turnbridge/internal/llm"
	"github.com/HexSleeves/turnbridge/internal/logging"
	"github.com/HexSleeves/turnbridge/internal/queue"
	"github.com/HexSleeves/turnbridge/internal/worker"
)

// KeySource tells where the API key in effect came from.
type KeySource string

const (
	KeyExplicit KeySource = "explicit"
	KeyEnv      KeySource = "env"
	KeyNone     KeySource = "none"
)

// Settings is a snapshot of the query parameters.
type Settings struct {
	APIKey    string
	KeySource KeySource
	Model     string
	MaxTokens int
}

// Session owns everything one host needs. All methods are safe for
// concurrent use.
type Session struct {
	mu        sync.RWMutex
	apiKey    string
	model     string
	maxTokens int
	getenv    func(string) string

	transport  llm.Transport
	gate       TurnGate
	results    *queue.Queue[llm.Response]
	jobs       *job.Tracker
	dispatcher *worker.Dispatcher
	bus        *bus.MessageBus
	logger     *pterm.Logger
	retention  int
}

type Option func(*Session)

// WithBus publishes session events on b.
func WithBus(b *bus.MessageBus) Option {
	return func(s *Session) { s.bus = b }
}

func WithLogger(l *pterm.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithGetenv replaces os.Getenv for the API key fallback.
func WithGetenv(fn func(string) string) Option {
	return func(s *Session) { s.getenv = fn }
}

// WithConfig seeds the key, model and token limit from cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Session) {
		s.apiKey = cfg.APIKey
		if cfg.Model != "" {
			s.model = cfg.Model
		}
		if cfg.MaxTokens > 0 {
			s.maxTokens = cfg.MaxTokens
		}
	}
}

// WithJobRetention bounds how many finished jobs are remembered.
func WithJobRetention(n int) Option {
	return func(s *Session) { s.retention = n }
}

func New(t llm.Transport, opts ...Option) *Session {
	s := &Session{
		model:     config.DefaultModel,
		maxTokens: config.DefaultMaxTokens,
		getenv:    os.Getenv,
		transport: t,
		results:   queue.New[llm.Response](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = bus.New(0)
	}
	s.logger = logging.OrDiscard(s.logger)
	s.jobs = job.NewTracker(s.bus, s.retention)
	s.dispatcher = worker.NewDispatcher(s.results, s.jobs, s.bus, s.logger)
	return s
}

// ---------------------------------------------------------------------------
// configuration
// ---------------------------------------------------------------------------

func (s *Session) SetAPIKey(key string) {
	s.mu.Lock()
	s.apiKey = key
	s.mu.Unlock()
	s.logger.Info("[Claude] API key set.")
	s.publishConfig("api_key", "(redacted)")
}

func (s *Session) SetModel(model string) {
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()
	s.logger.Info("[Claude] Model set", s.logger.Args("model", model))
	s.publishConfig("model", model)
}

func (s *Session) SetMaxTokens(n int) {
	s.mu.Lock()
	s.maxTokens = n
	s.mu.Unlock()
	s.logger.Info("[Claude] Max tokens set", s.logger.Args("max_tokens", n))
	s.publishConfig("max_tokens", n)
}

// Settings returns the values a query issued now would use.
func (s *Session) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Settings{Model: s.model, MaxTokens: s.maxTokens, KeySource: KeyNone}
	switch {
	case s.apiKey != "":
		st.APIKey, st.KeySource = s.apiKey, KeyExplicit
	case s.getenv != nil:
		if k := s.getenv(config.EnvAPIKey); k != "" {
			st.APIKey, st.KeySource = k, KeyEnv
		}
	}
	return st
}

func (s *Session) publishConfig(field string, value interface{}) {
	s.bus.Publish(bus.Message{
		Type:    bus.MsgConfigChanged,
		Payload: map[string]interface{}{"field": field, "value": value},
		Time:    time.Now(),
	})
}

// ---------------------------------------------------------------------------
// queries
// ---------------------------------------------------------------------------

// Query blocks until the API answers and returns the reply or an error
// Response.
func (s *Session) Query(ctx context.Context, prompt, systemPrompt string) llm.Response {
	return s.runSync(ctx, job.New(job.ModeSync, prompt, systemPrompt))
}

// QueryForTurn is Query limited to one accepted call per turn number.
func (s *Session) QueryForTurn(ctx context.Context, turn int, prompt, systemPrompt string) llm.Response {
	j := job.New(job.ModeSync, prompt, systemPrompt).ForTurn(turn)
	if !s.gate.Admit(turn) {
		return s.reject(j)
	}
	return s.runSync(ctx, j)
}

// QueryAsync runs Query in the background; its result lands on the response
// queue. If a background query is still running, QueryAsync first waits for
// it to finish. An error is returned only when ctx ends during that wait.
func (s *Session) QueryAsync(ctx context.Context, prompt, systemPrompt string) (*job.Job, error) {
	j := job.New(job.ModeAsync, prompt, systemPrompt)
	return j, s.submit(ctx, j)
}

// QueryForTurnAsync is QueryAsync behind the turn gate. A refused call puts
// the rate-limit error straight onto the response queue without starting a
// worker. A call already cancelled does not use up its turn; one cancelled
// while waiting for the previous worker has used it, so the cancelled
// response is queued in its place.
func (s *Session) QueryForTurnAsync(ctx context.Context, turn int, prompt, systemPrompt string) (*job.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j := job.New(job.ModeAsync, prompt, systemPrompt).ForTurn(turn)
	if !s.gate.Admit(turn) {
		resp := s.reject(j)
		s.enqueue(j.ID, resp)
		return j, nil
	}
	if err := s.submit(ctx, j); err != nil {
		s.enqueue(j.ID, llm.CancelledResponse())
		return j, err
	}
	return j, nil
}

// HasResponse reports whether a result is waiting.
func (s *Session) HasResponse() bool {
	return !s.results.Empty()
}

// GetResponse pops the oldest waiting result. It never blocks; when nothing
// is waiting it returns the zero Response, whose String is "".
func (s *Session) GetResponse() (llm.Response, bool) {
	resp, ok := s.results.Pop()
	if ok {
		s.bus.Publish(bus.Message{Type: bus.MsgResponseDelivered, Payload: resp, Time: time.Now()})
	}
	return resp, ok
}

// Pending reports whether a background query is in flight.
func (s *Session) Pending() bool { return s.dispatcher.Pending() }

// Shutdown waits for the in-flight background query, if any, to enqueue its
// result. The session remains usable afterwards.
func (s *Session) Shutdown(ctx context.Context) error {
	if s.dispatcher.Pending() {
		s.logger.Info("[Claude] Waiting for background query to finish")
	}
	return s.dispatcher.Wait(ctx)
}

// LastTurn returns the last turn admitted by the gate.
func (s *Session) LastTurn() (int, bool) { return s.gate.Last() }

func (s *Session) Jobs() *job.Tracker { return s.jobs }

func (s *Session) Bus() *bus.MessageBus { return s.bus }

func (s *Session) runSync(ctx context.Context, j *job.Job) llm.Response {
	s.jobs.Add(j)
	if err := s.jobs.Start(j.ID); err != nil {
		s.logger.Warn("[Claude] could not start job", s.logger.Args("job", j.ID, "error", err))
	}
	resp := s.execute(ctx, j.Prompt, j.SystemPrompt)
	if err := s.jobs.Complete(j.ID, resp); err != nil {
		s.logger.Warn("[Claude] could not complete job", s.logger.Args("job", j.ID, "error", err))
	}
	return resp
}

func (s *Session) submit(ctx context.Context, j *job.Job) error {
	s.jobs.Add(j)
	err := s.dispatcher.Submit(ctx, j, func(wctx context.Context) llm.Response {
		return s.execute(wctx, j.Prompt, j.SystemPrompt)
	})
	if err != nil {
		_ = s.jobs.Reject(j.ID, llm.CancelledResponse())
		return err
	}
	return nil
}

func (s *Session) reject(j *job.Job) llm.Response {
	resp := llm.RateLimitResponse()
	s.jobs.Add(j)
	_ = s.jobs.Reject(j.ID, resp)
	s.logger.Debug("[Claude] Query rejected by turn gate", s.logger.Args("turn", j.Turn))
	return resp
}

func (s *Session) enqueue(jobID string, resp llm.Response) {
	s.results.Push(resp)
	s.bus.Publish(bus.Message{Type: bus.MsgResponseEnqueued, JobID: jobID, Payload: resp, Time: time.Now()})
}

// execute reads the settings at call time and performs the exchange.
func (s *Session) execute(ctx context.Context, prompt, systemPrompt string) llm.Response {
	st := s.Settings()
	s.logger.Info("[Claude] Sending query...", s.logger.Args("model", st.Model))

	resp := llm.Query(ctx, s.transport, llm.Request{
		APIKey:       st.APIKey,
		Model:        st.Model,
		MaxTokens:    st.MaxTokens,
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
	})

	if resp.IsError() {
		s.logger.Warn("[Claude] Query failed", s.logger.Args("kind", string(resp.Kind), "status", resp.StatusCode))
	} else {
		s.logger.Info("[Claude] Response received.")
	}
	return resp
}
