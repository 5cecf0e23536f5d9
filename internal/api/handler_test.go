package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekballo/heatmap-api/internal/config"
	"github.com/ekballo/heatmap-api/internal/grid"
	"github.com/ekballo/heatmap-api/internal/reports"
	"github.com/ekballo/heatmap-api/internal/saturation"
)

type fakeQueries struct {
	self     *saturation.SelfDetail
	selfErr  error
	stat     *saturation.LevelStat
	statOK   bool
	statErr  error
	gridData *saturation.GridData
	gridErr  error

	lastLevel grid.Level
}

func (f *fakeQueries) GetSelf(context.Context, int64, int64) (*saturation.SelfDetail, error) {
	return f.self, f.selfErr
}

func (f *fakeQueries) GetLevel(_ context.Context, _ int64, level grid.Level, _ int64) (*saturation.LevelStat, bool, error) {
	f.lastLevel = level
	return f.stat, f.statOK, f.statErr
}

func (f *fakeQueries) GetGridData(context.Context) (*saturation.GridData, error) {
	return f.gridData, f.gridErr
}

type fakeReports struct {
	in  *reports.NewReportInput
	res *reports.NewReportResult
	err error
}

func (f *fakeReports) NewReport(_ context.Context, in *reports.NewReportInput) (*reports.NewReportResult, error) {
	f.in = in
	return f.res, f.err
}

func newTestServer(q *fakeQueries, rep *fakeReports, cfg config.ServerConfig) *httptest.Server {
	if cfg.ReportRatePerMin == 0 {
		cfg.ReportRatePerMin = 600
	}
	if cfg.ReportBurst == 0 {
		cfg.ReportBurst = 100
	}
	h := NewHandler(q, rep, 1000)
	return httptest.NewServer(h.Router(cfg))
}

func postJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decodeError(t *testing.T, body []byte) apiError {
	t.Helper()
	var e apiError
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

func TestQuery_MissingAction(t *testing.T) {
	srv := newTestServer(&fakeQueries{}, &fakeReports{}, config.ServerConfig{})
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000", `{"parts":{"root":"world"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	e := decodeError(t, body)
	assert.True(t, e.Error)
	assert.Equal(t, CodeMissingAction, e.Code)
	assert.Equal(t, http.StatusBadRequest, e.Status)
	assert.NotEmpty(t, e.Message)
}

func TestQuery_MissingParts(t *testing.T) {
	srv := newTestServer(&fakeQueries{}, &fakeReports{}, config.ServerConfig{})
	defer srv.Close()

	for _, body := range []string{
		`{"action":"world","grid_id":1}`,
		`{"action":"world","grid_id":1,"parts":null}`,
	} {
		resp, raw := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, CodeMissingParts, decodeError(t, raw).Code)
	}
}

func TestQuery_UnknownAction(t *testing.T) {
	srv := newTestServer(&fakeQueries{}, &fakeReports{}, config.ServerConfig{})
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000",
		`{"action":"drop_tables","parts":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeBadAction, decodeError(t, body).Code)
}

func TestQuery_MalformedBody(t *testing.T) {
	srv := newTestServer(&fakeQueries{}, &fakeReports{}, config.ServerConfig{})
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeBadRequest, decodeError(t, body).Code)
}

func TestQuery_Self(t *testing.T) {
	q := &fakeQueries{self: &saturation.SelfDetail{
		GridID: 100314800, Name: "Cluj", ParentName: "Romania",
		Level: 1, ParentLevel: 0, Population: 691106, Needed: 691, Peers: 41,
	}}
	srv := newTestServer(q, &fakeReports{}, config.ServerConfig{})
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000",
		`{"action":"self","grid_id":100314800,"parts":{}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got saturation.SelfDetail
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "Cluj", got.Name)
	assert.Equal(t, "Romania", got.ParentName)
	assert.Equal(t, int64(41), got.Peers)
}

func TestQuery_SelfRequiresGridID(t *testing.T) {
	srv := newTestServer(&fakeQueries{}, &fakeReports{}, config.ServerConfig{})
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000",
		`{"action":"self","parts":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeMissingGridID, decodeError(t, body).Code)
}

func TestQuery_LevelHit(t *testing.T) {
	q := &fakeQueries{
		stat: &saturation.LevelStat{
			GridID: 100314737, Name: "Romania", Population: 19000000,
			Needed: 19000, Reported: 450, Percent: 2.37,
		},
		statOK: true,
	}
	srv := newTestServer(q, &fakeReports{}, config.ServerConfig{})
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000",
		`{"action":"a0","grid_id":100314800,"parts":{}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, grid.LevelAdmin0, q.lastLevel)

	var got saturation.LevelStat
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, int64(100314737), got.GridID)
	assert.Equal(t, int64(450), got.Reported)
}

func TestQuery_LevelSoftMissIsFalse(t *testing.T) {
	srv := newTestServer(&fakeQueries{statOK: false}, &fakeReports{}, config.ServerConfig{})
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000",
		`{"action":"a3","grid_id":100314800,"parts":{}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "false", strings.TrimSpace(string(body)))
}

func TestQuery_LevelError(t *testing.T) {
	q := &fakeQueries{statErr: eris.New("store down")}
	srv := newTestServer(q, &fakeReports{}, config.ServerConfig{})
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000",
		`{"action":"world","grid_id":1,"parts":{}}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, CodeInternal, decodeError(t, body).Code)
}

func TestQuery_GridData(t *testing.T) {
	q := &fakeQueries{gridData: &saturation.GridData{
		Data: map[int64]*saturation.LevelStat{
			100314800: {GridID: 100314800, Name: "Cluj", Needed: 691, Reported: 12, Percent: 1.74},
		},
		HighestValue: 12,
		Count:        1,
	}}
	srv := newTestServer(q, &fakeReports{}, config.ServerConfig{})
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000",
		`{"action":"grid_data","parts":{}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got saturation.GridData
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, int64(12), got.HighestValue)
	assert.Equal(t, 1, got.Count)
	require.Contains(t, got.Data, int64(100314800))
}

func TestQuery_ActivityDataIsEmpty(t *testing.T) {
	srv := newTestServer(&fakeQueries{}, &fakeReports{}, config.ServerConfig{})
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000",
		`{"action":"activity_data","parts":{}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", strings.TrimSpace(string(body)))
}

func TestReport_Accepted(t *testing.T) {
	rep := &fakeReports{res: &reports.NewReportResult{
		ContactID: "c-1", GroupIDs: []string{"g-1", "g-2"},
	}}
	srv := newTestServer(&fakeQueries{}, rep, config.ServerConfig{})
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000/report",
		`{"action":"new_report","parts":{},"data":{
			"grid_id":100314800,"name":"Ana Pop","email":"ana@example.com",
			"phone":"+40700000000","list":[{"name":"Morning group","members":8}]}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got reports.NewReportResult
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "c-1", got.ContactID)
	assert.Len(t, got.GroupIDs, 2)

	require.NotNil(t, rep.in)
	assert.Equal(t, int64(100314800), rep.in.GridID)
	assert.Len(t, rep.in.List, 1)
}

func TestReport_RejectedInputIs400(t *testing.T) {
	rep := &fakeReports{err: eris.New("missing phone")}
	srv := newTestServer(&fakeQueries{}, rep, config.ServerConfig{})
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000/report",
		`{"action":"new_report","parts":{},"data":{"grid_id":1}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeBadRequest, decodeError(t, body).Code)
}

func TestReport_WrongAction(t *testing.T) {
	srv := newTestServer(&fakeQueries{}, &fakeReports{}, config.ServerConfig{})
	defer srv.Close()

	resp, body := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000/report",
		`{"action":"self","parts":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeBadAction, decodeError(t, body).Code)
}

func TestReport_RateLimited(t *testing.T) {
	rep := &fakeReports{res: &reports.NewReportResult{ContactID: "c-1"}}
	srv := newTestServer(&fakeQueries{}, rep, config.ServerConfig{
		ReportRatePerMin: 1,
		ReportBurst:      2,
	})
	defer srv.Close()

	body := `{"action":"new_report","parts":{},"data":{"grid_id":1,"name":"a","email":"e","phone":"p","list":[{}]}}`
	for i := 0; i < 2; i++ {
		resp, _ := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000/report", body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, raw := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000/report", body)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, CodeRateLimited, decodeError(t, raw).Code)
}

func TestReport_RateLimitDoesNotCoverQueries(t *testing.T) {
	q := &fakeQueries{statOK: false}
	srv := newTestServer(q, &fakeReports{}, config.ServerConfig{
		ReportRatePerMin: 1,
		ReportBurst:      1,
	})
	defer srv.Close()

	for i := 0; i < 5; i++ {
		resp, _ := postJSON(t, srv.URL+"/heatmap/v1/heatmap_1000",
			`{"action":"a0","grid_id":1,"parts":{}}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}
