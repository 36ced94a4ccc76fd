package timer

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/rpc"
)

// ServiceName is the connect service the timer RPCs are mounted under.
const ServiceName = "timer.v1.TimerService"

var (
	CreateTimerProcedure       = rpc.Procedure(ServiceName, "CreateTimer")
	StartTimerProcedure        = rpc.Procedure(ServiceName, "StartTimer")
	PauseTimerProcedure        = rpc.Procedure(ServiceName, "PauseTimer")
	ResetTimerProcedure        = rpc.Procedure(ServiceName, "ResetTimer")
	ChangeTimeProcedure        = rpc.Procedure(ServiceName, "ChangeTime")
	EndTimerProcedure          = rpc.Procedure(ServiceName, "EndTimer")
	UpdateDescriptionProcedure = rpc.Procedure(ServiceName, "UpdateDescription")
	GetTimerProcedure          = rpc.Procedure(ServiceName, "GetTimer")
	GetSummaryProcedure        = rpc.Procedure(ServiceName, "GetSummary")
	ListTimersProcedure        = rpc.Procedure(ServiceName, "ListTimers")
	SearchTimersProcedure      = rpc.Procedure(ServiceName, "SearchTimers")
	GetSettingsProcedure       = rpc.Procedure(ServiceName, "GetSettings")
)

// TimerApp defines what the service layer needs from the manager
type TimerApp interface {
	Create(ctx context.Context, req CreateTimerRequest) (View, error)
	Start(ctx context.Context, id string, description *string) (View, error)
	Pause(ctx context.Context, id string, confirmed bool) (View, error)
	Reset(ctx context.Context, id string, confirmed bool) (View, error)
	ChangeTime(ctx context.Context, id string, change TimeChange, confirmed bool) (View, error)
	End(ctx context.Context, id string, confirmed bool) (View, error)
	UpdateDescription(ctx context.Context, id, description string) (View, error)
	Get(id string) (View, error)
	Summary(id string) (Summary, error)
	List(includeHidden bool) []View
	Search(query string) []View
	Settings() Settings
}

var _ TimerApp = (*Manager)(nil)

// Service exposes the manager over connect.
type Service struct {
	app TimerApp
}

func NewService(app TimerApp) *Service {
	return &Service{app: app}
}

// Handler returns the mount path and handler of the service.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = rpc.HandlerOptions(opts...)
	mux := http.NewServeMux()
	mux.Handle(CreateTimerProcedure, connect.NewUnaryHandler(CreateTimerProcedure, s.CreateTimer, opts...))
	mux.Handle(StartTimerProcedure, connect.NewUnaryHandler(StartTimerProcedure, s.StartTimer, opts...))
	mux.Handle(PauseTimerProcedure, connect.NewUnaryHandler(PauseTimerProcedure, s.PauseTimer, opts...))
	mux.Handle(ResetTimerProcedure, connect.NewUnaryHandler(ResetTimerProcedure, s.ResetTimer, opts...))
	mux.Handle(ChangeTimeProcedure, connect.NewUnaryHandler(ChangeTimeProcedure, s.ChangeTime, opts...))
	mux.Handle(EndTimerProcedure, connect.NewUnaryHandler(EndTimerProcedure, s.EndTimer, opts...))
	mux.Handle(UpdateDescriptionProcedure, connect.NewUnaryHandler(UpdateDescriptionProcedure, s.UpdateDescription, opts...))
	mux.Handle(GetTimerProcedure, connect.NewUnaryHandler(GetTimerProcedure, s.GetTimer, opts...))
	mux.Handle(GetSummaryProcedure, connect.NewUnaryHandler(GetSummaryProcedure, s.GetSummary, opts...))
	mux.Handle(ListTimersProcedure, connect.NewUnaryHandler(ListTimersProcedure, s.ListTimers, opts...))
	mux.Handle(SearchTimersProcedure, connect.NewUnaryHandler(SearchTimersProcedure, s.SearchTimers, opts...))
	mux.Handle(GetSettingsProcedure, connect.NewUnaryHandler(GetSettingsProcedure, s.GetSettings, opts...))
	return "/" + ServiceName + "/", mux
}

func (s *Service) CreateTimer(ctx context.Context, req *connect.Request[CreateTimerRequest]) (*connect.Response[TimerResponse], error) {
	return respond(s.app.Create(ctx, *req.Msg))
}

func (s *Service) StartTimer(ctx context.Context, req *connect.Request[StartTimerRequest]) (*connect.Response[TimerResponse], error) {
	return respond(s.app.Start(ctx, req.Msg.TimerID, req.Msg.Description))
}

func (s *Service) PauseTimer(ctx context.Context, req *connect.Request[ConfirmRequest]) (*connect.Response[TimerResponse], error) {
	return respond(s.app.Pause(ctx, req.Msg.TimerID, req.Msg.Confirmed))
}

func (s *Service) ResetTimer(ctx context.Context, req *connect.Request[ConfirmRequest]) (*connect.Response[TimerResponse], error) {
	return respond(s.app.Reset(ctx, req.Msg.TimerID, req.Msg.Confirmed))
}

func (s *Service) ChangeTime(ctx context.Context, req *connect.Request[ChangeTimeRequest]) (*connect.Response[TimerResponse], error) {
	return respond(s.app.ChangeTime(ctx, req.Msg.TimerID, req.Msg.Change(), req.Msg.Confirmed))
}

func (s *Service) EndTimer(ctx context.Context, req *connect.Request[ConfirmRequest]) (*connect.Response[TimerResponse], error) {
	return respond(s.app.End(ctx, req.Msg.TimerID, req.Msg.Confirmed))
}

func (s *Service) UpdateDescription(ctx context.Context, req *connect.Request[UpdateDescriptionRequest]) (*connect.Response[TimerResponse], error) {
	return respond(s.app.UpdateDescription(ctx, req.Msg.TimerID, req.Msg.Description))
}

func (s *Service) GetTimer(_ context.Context, req *connect.Request[TimerRequest]) (*connect.Response[TimerResponse], error) {
	return respond(s.app.Get(req.Msg.TimerID))
}

func (s *Service) GetSummary(_ context.Context, req *connect.Request[TimerRequest]) (*connect.Response[SummaryResponse], error) {
	summary, err := s.app.Summary(req.Msg.TimerID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SummaryResponse{Summary: summary}), nil
}

func (s *Service) ListTimers(_ context.Context, req *connect.Request[ListTimersRequest]) (*connect.Response[ListTimersResponse], error) {
	return connect.NewResponse(&ListTimersResponse{Timers: s.app.List(req.Msg.IncludeHidden)}), nil
}

func (s *Service) SearchTimers(_ context.Context, req *connect.Request[SearchTimersRequest]) (*connect.Response[ListTimersResponse], error) {
	return connect.NewResponse(&ListTimersResponse{Timers: s.app.Search(req.Msg.Query)}), nil
}

func (s *Service) GetSettings(_ context.Context, _ *connect.Request[GetSettingsRequest]) (*connect.Response[SettingsResponse], error) {
	st := s.app.Settings()
	return connect.NewResponse(&SettingsResponse{
		DefaultSeconds:    st.DefaultSeconds,
		AlarmThresholdSec: st.AlarmThreshold,
		AllowUnlimited:    st.AllowUnlimited,
		PresetMinutes:     st.PresetMinutes,
	}), nil
}

func respond(v View, err error) (*connect.Response[TimerResponse], error) {
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TimerResponse{Timer: v}), nil
}

// toConnectError maps manager errors onto connect codes.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrTimerNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrCustomerNameRequired),
		errors.Is(err, ErrDescriptionRequired),
		errors.Is(err, ErrInvalidDuration):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrAlreadyStarted),
		errors.Is(err, ErrChangeAfterStart),
		errors.Is(err, ErrDescriptionLocked),
		errors.Is(err, ErrConfirmationRequired),
		errors.Is(err, ErrNoTimeRemaining),
		errors.Is(err, ErrTimerTerminated),
		errors.Is(err, ErrUnlimitedDisabled):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}
