package conversion

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-reader/internal/bus"
	"github.com/loqalabs/loqa-reader/internal/pipeline"
	"github.com/loqalabs/loqa-reader/internal/protocol"
	"github.com/loqalabs/loqa-reader/internal/synthesis"
	"github.com/nats-io/nats.go"
)

const (
	queueGroup    = "loqa-reader"
	resultsStream = "READER_CONVERSIONS"
	resultsMaxAge = 24 * time.Hour
)

// Converter is the pipeline surface the service drives.
type Converter interface {
	Convert(ctx context.Context, req pipeline.Request) (pipeline.Conversion, error)
	RetryAssembly(ctx context.Context, conv pipeline.Conversion, failed *pipeline.AssemblyError) (pipeline.Conversion, error)
	Discard(ctx context.Context, failed *pipeline.AssemblyError)
}

// Service runs conversions requested over the bus, one goroutine per
// request, each with its own cancellable context.
type Service struct {
	bus          *bus.Client
	conv         Converter
	defaultVoice synthesis.Voice
	subs         []*nats.Subscription
	durable      bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	logger       *slog.Logger

	mu       sync.Mutex
	closed   bool
	inflight map[string]context.CancelFunc
}

func NewService(parent context.Context, busClient *bus.Client, conv Converter, defaultVoice synthesis.Voice, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	if defaultVoice == "" {
		defaultVoice = synthesis.DefaultVoice
	}
	return &Service{
		bus:          busClient,
		conv:         conv,
		defaultVoice: defaultVoice,
		ctx:          ctx,
		cancel:       cancel,
		inflight:     make(map[string]context.CancelFunc),
		logger:       log.With(slog.String("component", "conversion-service")),
	}
}

func (s *Service) Start() error {
	if err := s.bus.EnsureStream(resultsStream, []string{protocol.SubjectConvertDone}, resultsMaxAge); err != nil {
		s.logger.Warn("results stream unavailable, publishing without retention", slogError(err))
	} else {
		s.durable = true
	}

	req, err := s.bus.Conn().QueueSubscribe(protocol.SubjectConvertRequest, queueGroup, s.handleRequest)
	if err != nil {
		return err
	}
	cancel, err := s.bus.Conn().Subscribe(protocol.SubjectConvertCancel, s.handleCancel)
	if err != nil {
		_ = req.Unsubscribe()
		return err
	}
	s.mu.Lock()
	s.subs = []*nats.Subscription{req, cancel}
	s.mu.Unlock()
	return nil
}

// Close stops accepting requests, cancels the running conversions and waits
// for them to publish their results.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && len(s.subs) > 0
}

// InFlight is the number of running conversions.
func (s *Service) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.ConvertRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode convert request", slogError(err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	voice := s.defaultVoice
	if req.Voice != "" {
		v, err := synthesis.ParseVoice(req.Voice)
		if err != nil {
			s.publishResult(msg, failed(req.RequestID, "invalid_request", err))
			return
		}
		voice = v
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		s.publishResult(msg, failed(req.RequestID, "cancelled", errors.New("conversion service is closing")))
		return
	}
	if _, dup := s.inflight[req.RequestID]; dup {
		s.mu.Unlock()
		cancel()
		s.publishResult(msg, failed(req.RequestID, "invalid_request", errors.New("request id already in flight")))
		return
	}
	s.inflight[req.RequestID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, req.RequestID)
			s.mu.Unlock()
			cancel()
		}()

		conv, err := s.convert(ctx, pipeline.Request{Title: req.Title, Text: req.Text, Voice: voice, Speed: req.Speed})
		if err != nil {
			s.logger.Warn("conversion failed", slog.String("request_id", req.RequestID), slogError(err))
			s.publishResult(msg, resultFromError(req.RequestID, err))
			return
		}
		s.publishResult(msg, resultFromConversion(req.RequestID, conv))
	}()
}

// convert retries a failed assembly once before discarding its segments.
func (s *Service) convert(ctx context.Context, req pipeline.Request) (pipeline.Conversion, error) {
	conv, err := s.conv.Convert(ctx, req)
	var asmErr *pipeline.AssemblyError
	if !errors.As(err, &asmErr) {
		return conv, err
	}
	s.logger.Info("retrying assembly", slog.String("conversion_id", asmErr.ConversionID))
	conv, err = s.conv.RetryAssembly(ctx, conv, asmErr)
	if errors.As(err, &asmErr) {
		s.conv.Discard(ctx, asmErr)
	}
	return conv, err
}

func (s *Service) handleCancel(msg *nats.Msg) {
	var req protocol.ConvertCancel
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode cancel request", slogError(err))
		return
	}
	s.mu.Lock()
	cancel, ok := s.inflight[req.RequestID]
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("cancel for unknown request", slog.String("request_id", req.RequestID))
		return
	}
	s.logger.Info("cancelling conversion", slog.String("request_id", req.RequestID))
	cancel()
}

func (s *Service) publishResult(msg *nats.Msg, result protocol.ConvertResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("failed to marshal convert result", slogError(err))
		return
	}
	if s.durable {
		if _, err := s.bus.JetStream().Publish(protocol.SubjectConvertDone, data); err != nil {
			s.logger.Warn("failed to publish convert result", slogError(err))
		}
	} else if err := s.bus.Conn().Publish(protocol.SubjectConvertDone, data); err != nil {
		s.logger.Warn("failed to publish convert result", slogError(err))
	}
	if msg.Reply != "" {
		if err := s.bus.Conn().Publish(msg.Reply, data); err != nil {
			s.logger.Warn("failed to reply to convert request", slogError(err))
		}
	}
}

func resultFromConversion(requestID string, conv pipeline.Conversion) protocol.ConvertResult {
	durations := make([]int64, len(conv.Asset.SegmentDurations))
	for i, d := range conv.Asset.SegmentDurations {
		durations[i] = d.Milliseconds()
	}
	return protocol.ConvertResult{
		RequestID:          requestID,
		EntryID:            conv.ID,
		Location:           conv.Asset.Location,
		SegmentDurationsMS: durations,
		TotalMS:            conv.Asset.TotalDuration.Milliseconds(),
		Timestamp:          time.Now().UTC(),
	}
}

func resultFromError(requestID string, err error) protocol.ConvertResult {
	var synthErr *pipeline.SynthesisError
	var asmErr *pipeline.AssemblyError
	switch {
	case errors.Is(err, context.Canceled):
		return failed(requestID, "cancelled", err)
	case errors.Is(err, pipeline.ErrNoContent):
		return failed(requestID, "no_content", err)
	case errors.As(err, &synthErr):
		res := failed(requestID, synthErr.Kind().String(), err)
		res.Error.FailedChunks = synthErr.FailedIndices()
		return res
	case errors.As(err, &asmErr):
		return failed(requestID, asmErr.Kind.String(), err)
	}
	return failed(requestID, "internal", err)
}

func failed(requestID, kind string, err error) protocol.ConvertResult {
	return protocol.ConvertResult{
		RequestID: requestID,
		Error:     &protocol.ConvertError{Kind: kind, Message: err.Error()},
		Timestamp: time.Now().UTC(),
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
