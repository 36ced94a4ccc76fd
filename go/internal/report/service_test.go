package report

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/rpc"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/store/memory"
)

type failingSource struct{ *memory.Store }

func (failingSource) ListTimersCreatedSince(context.Context, time.Time) ([]models.TimerRecord, error) {
	return nil, errors.New("connection reset")
}

func newReportServer(t *testing.T, src Source) string {
	t.Helper()
	fc := clockwork.NewFakeClockAt(day.Add(18 * time.Hour))
	mux := http.NewServeMux()
	mux.Handle(NewService(src, fc, time.UTC, 1800).Handler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func call[Req, Res any](t *testing.T, baseURL, procedure string, req *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](http.DefaultClient, baseURL+procedure, connect.WithCodec(rpc.JSONCodec{}))
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStore()
	s.Put(fixedRecord("timer_today", day.Add(9*time.Hour), 600, models.StateEnded))
	s.Put(fixedRecord("timer_yesterday", day.Add(-15*time.Hour), 0, models.StateExpired))
	require.NoError(t, s.AppendAction(ctx, models.AuditEntry{
		TimerID: "timer_today", Action: models.ActionPause, Timestamp: day.Add(9*time.Hour + 10*time.Minute),
	}))
	return s
}

func TestService_GetReportDefaultsToToday(t *testing.T) {
	url := newReportServer(t, seed(t))

	rep, err := call[GetReportRequest, Report](t, url, GetReportProcedure, &GetReportRequest{})
	require.NoError(t, err)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, "timer_today", rep.Rows[0].TimerID)
	assert.Equal(t, 1, rep.Rows[0].Pauses)
	assert.True(t, rep.From.Equal(day))

	rep, err = call[GetReportRequest, Report](t, url, GetReportProcedure, &GetReportRequest{
		From: day.AddDate(0, 0, -1), To: day.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.TotalTimers)

	_, err = call[GetReportRequest, Report](t, url, GetReportProcedure, &GetReportRequest{
		From: day, To: day.Add(-time.Hour),
	})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestService_GetUsageTotals(t *testing.T) {
	url := newReportServer(t, seed(t))

	resp, err := call[GetUsageTotalsRequest, GetUsageTotalsResponse](t, url, GetUsageTotalsProcedure, &GetUsageTotalsRequest{})
	require.NoError(t, err)
	assert.Equal(t, PeriodDaily, resp.Period)
	require.Len(t, resp.Buckets, 2)
	assert.Equal(t, "2024-06-04", resp.Buckets[0].Key)

	_, err = call[GetUsageTotalsRequest, GetUsageTotalsResponse](t, url, GetUsageTotalsProcedure, &GetUsageTotalsRequest{Period: "hourly"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestService_SourceFailure(t *testing.T) {
	url := newReportServer(t, failingSource{memory.NewStore()})

	_, err := call[GetUsageTotalsRequest, GetUsageTotalsResponse](t, url, GetUsageTotalsProcedure, &GetUsageTotalsRequest{Period: "weekly"})
	assert.Equal(t, connect.CodeInternal, connect.CodeOf(err))
}
