package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"endlessdrive/server/internal/logging"
	"endlessdrive/server/internal/scores"
)

// EncodingHeader carries the payload codec name on streaming responses.
const EncodingHeader = "x-payload-encoding"

const (
	telemetryStreamRateHz = 10
	diffStreamRateHz      = 20
	maxPendingDiffs       = 256
)

// Option customises the behaviour of the gRPC service.
type Option func(*Service)

// tickerFactory constructs cancellable tick channels for throttled streaming.
type tickerFactory func(time.Duration) (<-chan time.Time, func())

// WithCompressor overrides the default payload compressor.
func WithCompressor(compressor Compressor) Option {
	return func(s *Service) {
		if compressor != nil {
			s.compressor = compressor
		}
	}
}

// WithTickerFactory overrides the throttling ticker factory (used in tests).
func WithTickerFactory(factory tickerFactory) Option {
	return func(s *Service) {
		if factory != nil {
			s.newTicker = factory
		}
	}
}

// WithScores wires score submission and the leaderboard.
func WithScores(backend ScoreBackend) Option {
	return func(s *Service) { s.scores = backend }
}

// WithTelemetry wires the telemetry stream.
func WithTelemetry(source TelemetrySource) Option {
	return func(s *Service) { s.telemetry = source }
}

// WithDiffSource wires the scene diff stream.
func WithDiffSource(source DiffSource) Option {
	return func(s *Service) { s.diffs = source }
}

// WithLogger overrides the service logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service implements LeaderboardServer. Each dependency is optional; RPCs
// whose dependency is missing fail with FailedPrecondition.
type Service struct {
	scores     ScoreBackend
	telemetry  TelemetrySource
	diffs      DiffSource
	compressor Compressor
	newTicker  tickerFactory
	logger     *logging.Logger
}

// NewService builds the service from the supplied options.
func NewService(opts ...Option) *Service {
	service := &Service{compressor: NewSnappyCompressor(), newTicker: defaultTickerFactory, logger: logging.L()}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service
}

func defaultTickerFactory(interval time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(interval)
	stop := func() {
		ticker.Stop()
	}
	return ticker.C, stop
}

// SubmitScore stores {"name": string, "score": number}.
func (s *Service) SubmitScore(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if s == nil || s.scores == nil {
		return nil, status.Error(codes.FailedPrecondition, "scores unavailable")
	}
	//1.- Validate the loosely typed struct before touching the store.
	fields := req.GetFields()
	scoreValue, ok := fields["score"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "score is required")
	}
	if _, isNumber := scoreValue.GetKind().(*structpb.Value_NumberValue); !isNumber {
		return nil, status.Error(codes.InvalidArgument, "score must be a number")
	}
	name := fields["name"].GetStringValue()

	//2.- Persist synchronously so the caller learns about store failures.
	entry, err := s.scores.Submit(ctx, name, scoreValue.GetNumberValue())
	switch {
	case errors.Is(err, scores.ErrInvalidEntry):
		return nil, status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, scores.ErrNoStore):
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	case err != nil:
		s.logger.Warn("grpc score submit failed", logging.Error(err))
		return nil, status.Error(codes.Unavailable, "score store unavailable")
	}
	s.logger.Info("grpc score submitted", logging.String("name", entry.Name), logging.Int("score", entry.Score))
	return &emptypb.Empty{}, nil
}

// TopScores returns the ranked leaderboard as a list of structs.
func (s *Service) TopScores(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if s == nil || s.scores == nil {
		return nil, status.Error(codes.FailedPrecondition, "scores unavailable")
	}
	entries, err := s.scores.Top(ctx)
	if err != nil {
		return nil, status.Error(codes.Unavailable, "score store unavailable")
	}
	values := make([]any, 0, len(entries))
	for _, entry := range entries {
		values = append(values, map[string]any{"name": entry.Name, "score": entry.Score})
	}
	list, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode scores: %v", err)
	}
	return list, nil
}

// StreamTelemetry pushes the latest telemetry snapshot at a fixed cadence,
// skipping ticks where no new frame was published.
func (s *Service) StreamTelemetry(_ *emptypb.Empty, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	if s == nil || s.telemetry == nil {
		return status.Error(codes.FailedPrecondition, "telemetry unavailable")
	}
	ctx := stream.Context()
	compressor := s.compressorOrDefault()
	if err := stream.SendHeader(metadata.Pairs(EncodingHeader, compressor.Name())); err != nil {
		return err
	}

	tickCh, stop := s.newTicker(time.Second / telemetryStreamRateHz)
	defer stop()

	var (
		sent      bool
		lastFrame uint64
	)
	for {
		select {
		case <-ctx.Done():
			return contextStatus(ctx)
		case <-tickCh:
			snapshot := s.telemetry.Telemetry()
			if snapshot == nil || (sent && snapshot.Number == lastFrame) {
				continue
			}
			payload, err := json.Marshal(snapshot)
			if err != nil {
				return status.Errorf(codes.Internal, "encode telemetry: %v", err)
			}
			compressed, err := compressor.Compress(payload)
			if err != nil {
				return status.Errorf(codes.Internal, "compress telemetry: %v", err)
			}
			if err := stream.Send(wrapperspb.Bytes(compressed)); err != nil {
				return err
			}
			sent, lastFrame = true, snapshot.Number
		}
	}
}

// StreamSceneDiffs relays encoded scene diffs to a watcher.
func (s *Service) StreamSceneDiffs(_ *emptypb.Empty, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	if s == nil || s.diffs == nil {
		return status.Error(codes.FailedPrecondition, "streaming unavailable")
	}
	ctx := stream.Context()
	//1.- Subscribe to the diff fan-out so we receive future updates.
	diffCh, cancel, err := s.diffs.Subscribe(ctx)
	if err != nil {
		return status.Errorf(codes.Internal, "subscribe diffs: %v", err)
	}
	defer cancel()

	compressor := s.compressorOrDefault()
	if err := stream.SendHeader(metadata.Pairs(EncodingHeader, compressor.Name())); err != nil {
		return err
	}

	tickCh, stop := s.newTicker(time.Second / diffStreamRateHz)
	defer stop()

	var (
		pending    [][]byte
		diffClosed bool
	)

	for {
		select {
		case <-ctx.Done():
			//2.- Surface context cancellation so clients can retry.
			return contextStatus(ctx)
		case frame, ok := <-diffCh:
			if !ok {
				//3.- Note the closed channel so the loop terminates after draining.
				diffClosed = true
				diffCh = nil
				if len(pending) == 0 {
					return nil
				}
				continue
			}
			//4.- Buffer incoming diffs, shedding the oldest when the watcher lags.
			pending = append(pending, frame.Payload)
			if len(pending) > maxPendingDiffs {
				pending = pending[len(pending)-maxPendingDiffs:]
			}
		case <-tickCh:
			if len(pending) == 0 {
				//5.- Exit once all buffered diffs are drained and the source closed.
				if diffClosed {
					return nil
				}
				continue
			}
			//6.- Flush in production order.
			for _, payload := range pending {
				compressed, err := compressor.Compress(payload)
				if err != nil {
					return status.Errorf(codes.Internal, "compress diff: %v", err)
				}
				if err := stream.Send(wrapperspb.Bytes(compressed)); err != nil {
					return err
				}
			}
			pending = pending[:0]
		}
	}
}

func (s *Service) compressorOrDefault() Compressor {
	if s.compressor == nil {
		return NewSnappyCompressor()
	}
	return s.compressor
}

func contextStatus(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return status.Error(codes.Canceled, "stream cancelled")
	}
	return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
}

// entryFromValue converts a leaderboard list element back into an entry.
func entryFromValue(value *structpb.Value) (scores.Entry, bool) {
	fields := value.GetStructValue().GetFields()
	if fields == nil {
		return scores.Entry{}, false
	}
	score := fields["score"].GetNumberValue()
	if math.IsNaN(score) {
		return scores.Entry{}, false
	}
	return scores.Entry{Name: fields["name"].GetStringValue(), Score: int(score)}, true
}

// EntriesFromList decodes a TopScores response.
func EntriesFromList(list *structpb.ListValue) []scores.Entry {
	entries := make([]scores.Entry, 0, len(list.GetValues()))
	for _, value := range list.GetValues() {
		if entry, ok := entryFromValue(value); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

var _ LeaderboardServer = (*Service)(nil)
