package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-go/revlive/pkg/gateway/generate"
	"github.com/vango-go/revlive/pkg/gateway/live/protocol"
	"github.com/vango-go/revlive/pkg/gateway/metrics"
	"github.com/vango-go/revlive/pkg/gateway/observe"
)

var errBackpressure = errors.New("live outbound backpressure")

// Close reasons reported to metrics.
const (
	closeClient   = "client_closed"
	closeCanceled = "server_canceled"
	closeError    = "error"
)

type Config struct {
	MaxMessageBytes   int64
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	TurnTimeout       time.Duration
	OutboundQueueSize int
}

type Dependencies struct {
	Conn      *websocket.Conn
	Logger    *slog.Logger
	Generator generate.Generator
	Metrics   *metrics.Metrics
	SessionID string
	RequestID string
	Config    Config
	Now       func() time.Time
}

// LiveSession relays text turns between one WebSocket client and the
// generator. It keeps no state between turns. At most one turn is in flight:
// a new turn cancels the previous one, and only the newest is answered. A turn
// answered before its successor arrived cannot be recalled, so replies echo
// the client's turn_id and the client drops the ones it has superseded.
type LiveSession struct {
	conn      *websocket.Conn
	logger    *slog.Logger
	generator generate.Generator
	metrics   *metrics.Metrics
	sessionID string
	requestID string
	cfg       Config
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outbound chan outboundFrame

	// latestTurn is the id of the newest accepted turn.
	latestTurn atomic.Int64
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

type turnResult struct {
	turnID     int64
	clientTurn uint64 // echoed to the client as turn_id
	text       string
	err        error
	duration   time.Duration
}

func New(deps Dependencies) (*LiveSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 32
	}
	if deps.Config.TurnTimeout <= 0 {
		deps.Config.TurnTimeout = 30 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &LiveSession{
		conn:      deps.Conn,
		logger:    deps.Logger.With("session_id", deps.SessionID),
		generator: deps.Generator,
		metrics:   deps.Metrics,
		sessionID: deps.SessionID,
		requestID: deps.RequestID,
		cfg:       deps.Config,
		now:       deps.Now,
		ctx:       ctx,
		cancel:    cancel,
		outbound:  make(chan outboundFrame, deps.Config.OutboundQueueSize),
	}, nil
}

// ID returns the session id.
func (s *LiveSession) ID() string { return s.sessionID }

// Run serves the connection until the client goes away, the session is
// canceled, or a write fails. The handshake message is sent first.
func (s *LiveSession) Run() (err error) {
	start := s.now()
	reason := closeClient
	s.metrics.RecordLiveSessionStart()
	defer func() {
		s.metrics.RecordLiveSessionEnd(reason, s.now().Sub(start))
	}()
	defer s.cancel()

	if s.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 16)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:      s.conn,
			ctx:     s.ctx,
			cfg:     s.cfg,
			frames:  s.outbound,
			isStale: s.isStale,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	flushAndClose := func() {
		s.cancel()
		wait := 100 * time.Millisecond
		if s.cfg.WriteTimeout > 0 && s.cfg.WriteTimeout < wait {
			wait = s.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-writerErrCh:
		case <-timer.C:
		}
	}

	if err := s.sendJSON(0, protocol.NewConnectionEstablished()); err != nil {
		reason = closeError
		flushAndClose()
		return err
	}
	s.logger.Info("live session started", "request_id", s.requestID)

	resultCh := make(chan turnResult, 4)
	var (
		wg           sync.WaitGroup
		activeCancel context.CancelFunc
	)
	defer func() {
		if activeCancel != nil {
			activeCancel()
		}
		s.cancel()
		wg.Wait()
	}()

	for {
		select {
		case <-s.ctx.Done():
			reason = closeCanceled
			flushAndClose()
			return nil

		case werr := <-writerErrCh:
			if werr != nil {
				reason = closeError
				s.logger.Warn("live session write failed", "error", werr)
			}
			return werr

		case frame, ok := <-readCh:
			if !ok {
				flushAndClose()
				return nil
			}
			if frame.err != nil {
				if websocket.IsCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					s.logger.Info("live session closed by client")
					flushAndClose()
					return nil
				}
				reason = closeError
				s.logger.Warn("live session read failed", "error", frame.err)
				flushAndClose()
				return frame.err
			}

			msg, ok := s.decodeTurn(frame)
			if !ok {
				continue
			}

			if activeCancel != nil {
				activeCancel()
				s.metrics.RecordTurn(metrics.TurnCanceled)
				s.logger.Info("turn superseded", "turn_id", s.latestTurn.Load())
			}
			turnID := s.latestTurn.Add(1)
			turnCtx, cancel := s.newTurnContext()
			activeCancel = cancel
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer cancel()
				res := s.runTurn(turnCtx, turnID, msg.Text)
				res.clientTurn = msg.TurnID
				select {
				case resultCh <- res:
				case <-s.ctx.Done():
				}
			}()

		case res := <-resultCh:
			if res.turnID != s.latestTurn.Load() {
				continue
			}
			activeCancel = nil
			if err := s.deliver(res); err != nil {
				reason = closeError
				flushAndClose()
				return err
			}
		}
	}
}

// decodeTurn validates an inbound frame. Invalid frames are answered with one
// error message; unknown types are logged and dropped.
func (s *LiveSession) decodeTurn(frame inboundFrame) (protocol.ClientTextMessage, bool) {
	var none protocol.ClientTextMessage
	if frame.messageType != websocket.TextMessage {
		s.metrics.RecordTurn(metrics.TurnInvalid)
		_ = s.sendJSON(0, protocol.NewError(protocol.MessageInvalidTurn))
		return none, false
	}
	msg, err := protocol.DecodeClientMessage(frame.data)
	if err != nil {
		if protocol.IsUnknownType(err) {
			var de *protocol.DecodeError
			errors.As(err, &de)
			s.logger.Warn("unknown live message type", "type", de.Type)
			return none, false
		}
		s.metrics.RecordTurn(metrics.TurnInvalid)
		s.logger.Info("invalid live message", "error", err)
		_ = s.sendJSON(0, protocol.NewError(protocol.MessageInvalidTurn))
		return none, false
	}
	tm, ok := msg.(protocol.ClientTextMessage)
	return tm, ok
}

func (s *LiveSession) runTurn(ctx context.Context, turnID int64, text string) turnResult {
	ctx, span := observe.StartSpan(ctx, "relay.turn", trace.WithAttributes(
		attribute.String("session.id", s.sessionID),
		attribute.Int64("turn.id", turnID),
	))
	defer span.End()

	started := s.now()
	observe.Logger(ctx, s.logger).Info("turn received", "turn_id", turnID, "chars", len(text))
	answer, err := s.generator.Generate(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
	}
	return turnResult{turnID: turnID, text: answer, err: err, duration: s.now().Sub(started)}
}

func (s *LiveSession) deliver(res turnResult) error {
	if res.err != nil {
		status := metrics.TurnError
		if errors.Is(res.err, context.DeadlineExceeded) {
			status = metrics.TurnTimeout
		}
		s.metrics.RecordTurn(status)
		s.logger.Error("turn failed", "turn_id", res.turnID, "error", res.err, "duration_ms", res.duration.Milliseconds())
		failed := protocol.NewError(protocol.MessageTurnFailed)
		failed.TurnID = res.clientTurn
		return s.sendJSON(res.turnID, failed)
	}
	s.metrics.RecordTurn(metrics.TurnOK)
	s.logger.Info("turn answered", "turn_id", res.turnID, "chars", len(res.text), "duration_ms", res.duration.Milliseconds())
	answer := protocol.NewAIResponse(res.text)
	answer.TurnID = res.clientTurn
	return s.sendJSON(res.turnID, answer)
}

func (s *LiveSession) isStale(turnID int64) bool {
	return turnID < s.latestTurn.Load()
}

func (s *LiveSession) sendJSON(turnID int64, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case s.outbound <- outboundFrame{turnID: turnID, payload: payload}:
		return nil
	default:
		return errBackpressure
	}
}

func (s *LiveSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

// Cancel ends the session. Run returns after flushing queued frames.
func (s *LiveSession) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
}

// Notify sends a server-initiated error message, for example before shutdown.
func (s *LiveSession) Notify(message string) error {
	if s == nil {
		return nil
	}
	return s.sendJSON(0, protocol.NewError(message))
}

func (s *LiveSession) newTurnContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.cfg.TurnTimeout)
}
