package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/rpc"
)

const ServiceName = "timer.v1.ReportService"

var (
	GetReportProcedure      = rpc.Procedure(ServiceName, "GetReport")
	GetUsageTotalsProcedure = rpc.Procedure(ServiceName, "GetUsageTotals")
)

var ErrInvalidRange = errors.New("report range end is before its start")

type GetReportRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type GetUsageTotalsRequest struct {
	Period string `json:"period"`
}

type GetUsageTotalsResponse struct {
	Period  Period   `json:"period"`
	Buckets []Bucket `json:"buckets"`
}

// Service serves reports read-only from a Source.
type Service struct {
	source         Source
	clock          clockwork.Clock
	loc            *time.Location
	defaultSeconds int
}

func NewService(source Source, clock clockwork.Clock, loc *time.Location, defaultSeconds int) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{source: source, clock: clock, loc: loc, defaultSeconds: defaultSeconds}
}

// Handler returns the mount path and handler of the service.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = rpc.HandlerOptions(opts...)
	mux := http.NewServeMux()
	mux.Handle(GetReportProcedure, connect.NewUnaryHandler(GetReportProcedure, s.GetReport, opts...))
	mux.Handle(GetUsageTotalsProcedure, connect.NewUnaryHandler(GetUsageTotalsProcedure, s.GetUsageTotals, opts...))
	return "/" + ServiceName + "/", mux
}

// GetReport defaults to today when no range is given.
func (s *Service) GetReport(ctx context.Context, req *connect.Request[GetReportRequest]) (*connect.Response[Report], error) {
	from, to := req.Msg.From, req.Msg.To
	if from.IsZero() {
		now := s.clock.Now().In(s.loc)
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	}
	if to.IsZero() {
		to = from.AddDate(0, 0, 1)
	}
	if to.Before(from) {
		return nil, connect.NewError(connect.CodeInvalidArgument, ErrInvalidRange)
	}

	timers, err := s.source.ListTimersCreatedBetween(ctx, from, to)
	if err != nil {
		log.Error().Err(err).Time("from", from).Time("to", to).Msg("Failed to load timers for report")
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("load timers: %w", err))
	}
	actions, err := s.source.ListActionsBetween(ctx, from, to)
	if err != nil {
		log.Error().Err(err).Time("from", from).Time("to", to).Msg("Failed to load actions for report")
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("load actions: %w", err))
	}

	rep := Build(timers, actions, from, to, s.defaultSeconds)
	return connect.NewResponse(&rep), nil
}

func (s *Service) GetUsageTotals(ctx context.Context, req *connect.Request[GetUsageTotalsRequest]) (*connect.Response[GetUsageTotalsResponse], error) {
	period, err := ParsePeriod(req.Msg.Period)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	now := s.clock.Now()
	timers, err := s.source.ListTimersCreatedSince(ctx, period.Since(now))
	if err != nil {
		log.Error().Err(err).Str("period", string(period)).Msg("Failed to load timers for usage totals")
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("load timers: %w", err))
	}
	return connect.NewResponse(&GetUsageTotalsResponse{
		Period:  period,
		Buckets: Totals(timers, period, now, s.loc, s.defaultSeconds),
	}), nil
}
