package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-sql/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dentalclinic/records/internal/config"
	"github.com/dentalclinic/records/internal/domain/search"
	"github.com/dentalclinic/records/internal/domain/visit"
	"github.com/dentalclinic/records/internal/platform/export"
	"github.com/dentalclinic/records/internal/platform/telemetry"
)

func testConfig(t *testing.T, shape string) *config.Config {
	t.Helper()
	return &config.Config{
		Env:            "development",
		StoreDriver:    config.DriverSQLite,
		SQLitePath:     ":memory:",
		SchemaShape:    shape,
		SearchMode:     "collapsed",
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		BodyLimit:      "1M",
	}
}

func openTestStore(t *testing.T, cfg *config.Config) *store {
	t.Helper()
	st, err := openStore(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(st.close)
	return st
}

func do(e http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestNewLogger_Level(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, newLogger("production", "debug").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newLogger("production", "nonsense").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newLogger("development", "").GetLevel())
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := testConfig(t, "embedded")
	cfg.StoreDriver = "mysql"
	_, err := openStore(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestServer_IntakeAppendSearch(t *testing.T) {
	for _, shape := range []string{"embedded", "normalized"} {
		t.Run(shape, func(t *testing.T) {
			cfg := testConfig(t, shape)
			st := openTestStore(t, cfg)
			metrics := telemetry.NewProvider(telemetry.Config{ServiceName: "records-test"})
			e := newServer(cfg, zerolog.Nop(), st.repo, st.shape, nil, metrics)

			rec := do(e, http.MethodPost, "/api/v1/visits", `{"name":"Jane","surname":"Doe","dental_number":"D-100",
				"type_of_visit":"New","date":"2024-01-10","diagnoses":[{"diagnosis":"Caries","icd10":"K02"}]}`)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			var created struct {
				ID        string `json:"id"`
				CreatedBy string `json:"created_by"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
			assert.Equal(t, "dev-user", created.CreatedBy)

			rec = do(e, http.MethodPost, "/api/v1/visits/"+created.ID+"/diagnoses", `{"diagnosis":"Gingivitis","icd10":"K05"}`)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			rec = do(e, http.MethodPost, "/api/v1/search", `{"filterType":"dental_number","filterValue":"D-100"}`)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var rows []search.Row
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
			require.Len(t, rows, 1)
			assert.Equal(t, "Caries<br>Gingivitis", rows[0].Diagnosis)
			assert.Equal(t, "K02<br>K05", rows[0].ICD10)

			rec = do(e, http.MethodGet, "/api/v1/search?field=date&value=not-a-date", "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
		})
	}
}

func TestServer_ValidationAndNotFound(t *testing.T) {
	cfg := testConfig(t, "embedded")
	st := openTestStore(t, cfg)
	e := newServer(cfg, zerolog.Nop(), st.repo, st.shape, nil, nil)

	rec := do(e, http.MethodPost, "/api/v1/visits", `{"name":"Jane"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

	rec = do(e, http.MethodGet, "/api/v1/visits/6f1c3c1e-0000-4000-8000-000000000000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/search", `{"filterType":"blood_type","filterValue":"A"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	cfg := testConfig(t, "embedded")
	st := openTestStore(t, cfg)
	metrics := telemetry.NewProvider(telemetry.Config{ServiceName: "records-test"})
	e := newServer(cfg, zerolog.Nop(), st.repo, st.shape, nil, metrics)

	rec := do(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(e, http.MethodGet, "/health/db", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sqlite")

	rec = do(e, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_Export(t *testing.T) {
	cfg := testConfig(t, "normalized")
	st := openTestStore(t, cfg)
	e := newServer(cfg, zerolog.Nop(), st.repo, st.shape, nil, nil)

	rec := do(e, http.MethodPost, "/api/v1/visits", `{"name":"Jane","surname":"Doe","dental_number":"D-100",
		"type_of_visit":"New","date":"2024-01-10","diagnosis_list":["Caries","Gingivitis"],"icd10_list":["K02","K05"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(e, http.MethodPost, "/api/v1/export", `{"filterType":"surname","filterValue":"doe"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "visits.xlsx")

	f, err := excelize.OpenReader(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	defer f.Close()
	cell, err := f.GetCellValue(export.SheetName, "D2")
	require.NoError(t, err)
	assert.Equal(t, "Caries\nGingivitis", cell)
}

func TestRunExport(t *testing.T) {
	cfg := testConfig(t, "embedded")
	st := openTestStore(t, cfg)
	svc := visit.NewService(st.repo, st.shape, zerolog.Nop(), nil)
	ctx := context.Background()

	v, err := svc.Intake(ctx, &visit.Visit{
		PatientName:    "Ann",
		PatientSurname: "Smith",
		DentalNumber:   "D-001",
		VisitType:      "New",
	}, nil, "")
	require.Error(t, err, "missing date must be rejected")
	require.Nil(t, v)

	_, err = svc.Intake(ctx, &visit.Visit{
		PatientName:    "Ann",
		PatientSurname: "Smith",
		DentalNumber:   "D-001",
		VisitType:      "New",
		VisitDate:      mustDate(t, "2024-03-01"),
	}, nil, "dr.adams")
	require.NoError(t, err)

	resolver := search.NewResolver(svc, search.ModeCollapsed, zerolog.Nop(), nil)
	path := filepath.Join(t.TempDir(), "out.xlsx")

	n, err := runExport(ctx, resolver, "name", "ann", "", path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	cell, err := f.GetCellValue(export.SheetName, "G2")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", cell)

	_, err = runExport(ctx, resolver, "blood_type", "A", "", path)
	assert.Error(t, err)
	_, err = runExport(ctx, resolver, "name", "ann", "sideways", path)
	assert.Error(t, err)
}

func mustDate(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := civil.ParseDate(s)
	require.NoError(t, err)
	return d
}
