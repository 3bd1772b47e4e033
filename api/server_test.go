package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sda-calculator/core/engine"
	"sda-calculator/core/options"
	"sda-calculator/core/pricing"
	"sda-calculator/core/temporal"
	"sda-calculator/core/types"
	"sda-calculator/db"
	"sda-calculator/internal/errors"
)

const (
	apartment = "Apartment, 1 bedroom, 1 resident"
	house     = "House, 2 residents"
	legacy6   = "Legacy Stock, 6 residents"
	sydney    = "NSW - Sydney - Inner City"
	hobart    = "TAS - Hobart"
)

// fakeStore answers the calls the server makes; anything else panics
type fakeStore struct {
	db.PricingStore
	pingErr error
	status  db.Status
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) Stats(context.Context) (db.Status, error) {
	if f.pingErr != nil {
		return db.Status{}, errors.Storage("count rows", f.pingErr)
	}
	return f.status, nil
}

func testSnapshot(t *testing.T) *pricing.Snapshot {
	t.Helper()
	from, err := temporal.ParseDate("2025-07-01")
	require.NoError(t, err)
	mrrcFrom, err := temporal.ParseDate("2025-03-20")
	require.NoError(t, err)

	return pricing.NewSnapshotBuilder().
		WithSource(pricing.SourceDatabase).
		AddBuildingTypes(
			types.BuildingType{Name: apartment, ResidentCount: 1, Category: types.CategoryApartment, LocationFactorColumn: 1, DisplayOrder: 1},
			types.BuildingType{Name: house, ResidentCount: 2, Category: types.CategoryHouse, AllowsRobust: true, LocationFactorColumn: 8, DisplayOrder: 8},
			types.BuildingType{Name: legacy6, ResidentCount: 6, Category: types.CategoryLegacy, AllowsRobust: true, LocationFactorColumn: 11, DisplayOrder: 12},
		).
		AddRegions(
			types.SA4Region{Name: sydney, State: types.StateNSW, DisplayOrder: 1},
			types.SA4Region{Name: hobart, State: types.StateTAS, DisplayOrder: 1},
		).
		AddBasePrices(types.BasePrice{
			ID: 1, StockType: types.StockPost2023, BuildingType: apartment, ResidentCount: 1,
			DesignCategory: types.DesignFA, OOAStatus: types.OOANone, ITCClaimed: types.Bool(true),
			Price: decimal.RequireFromString("38000.00"), Interval: temporal.OpenFrom(from),
		}).
		AddLocationFactors(types.LocationFactor{
			ID: 1, SA4Region: sydney, StockCategory: types.StockCategoryNewBuilds, BuildingTypeColumn: 1,
			Factor: decimal.RequireFromString("1.1500"), Interval: temporal.OpenFrom(from),
		}).
		AddRentRates(types.RentContributionRate{
			ID: 1, SingleRateFortnightly: decimal.RequireFromString("506.56"), CoupleRateFortnightly: decimal.RequireFromString("320.98"),
			Interval: temporal.OpenFrom(mrrcFrom),
		}).
		Build()
}

func newTestServer(t *testing.T, store db.PricingStore, snap *pricing.Snapshot) *Server {
	t.Helper()
	holder := engine.NewSnapshotHolder(snap)
	calc := engine.NewEngine(holder, pricing.EngineConfig{}, nil)
	cfg := DefaultConfig()
	cfg.Version = "1.2.3"
	return NewServer(cfg, calc, holder, store, nil)
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func scenario() CalculateRequest {
	return CalculateRequest{
		StockType:      "POST_2023",
		BuildingType:   apartment,
		DesignCategory: "FA",
		OOAStatus:      "NO_OOA",
		ITCClaimed:     types.Bool(true),
		SA4Region:      sydney,
		AsOf:           "2025-07-01",
	}
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, testSnapshot(t))
	rec := do(t, s, http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var info ServiceInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, ServiceInfo{Service: ServiceName, Status: "healthy", Version: "1.2.3"}, info)
}

func TestHealth(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		s := newTestServer(t, &fakeStore{}, testSnapshot(t))
		rec := do(t, s, http.MethodGet, "/api/v1/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"healthy","database":"connected"}`, rec.Body.String())
	})

	t.Run("database down", func(t *testing.T) {
		s := newTestServer(t, &fakeStore{pingErr: fmt.Errorf("connection refused")}, testSnapshot(t))
		rec := do(t, s, http.MethodGet, "/api/v1/health", nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decodeError(t, rec)
		assert.Contains(t, body.Detail, "Database unavailable")
		assert.Equal(t, errors.TypeStorage, body.Type)
	})

	t.Run("no store", func(t *testing.T) {
		s := newTestServer(t, nil, testSnapshot(t))
		rec := do(t, s, http.MethodGet, "/api/v1/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestCalculate(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, testSnapshot(t))
	rec := do(t, s, http.MethodPost, "/api/v1/sda/calculate", scenario())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var b pricing.Breakdown
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.True(t, b.BasePrice.Equal(decimal.RequireFromString("38000")))
	assert.True(t, b.AnnualSDAAmount.Equal(decimal.RequireFromString("43700")))
	assert.True(t, b.MRRC.Single.Annual.Equal(decimal.RequireFromString("13170.56")))
	assert.True(t, b.NetNDIASingle.Equal(decimal.RequireFromString("30529.44")))
	assert.Equal(t, "2025-07-01", b.EffectiveDate)
	assert.NotEmpty(t, b.Lineage.SnapshotID)
}

func TestCalculateErrors(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, testSnapshot(t))

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantType   errors.Type
		wantFields []string
	}{
		{
			name:       "malformed json",
			body:       `{"stock_type":`,
			wantStatus: http.StatusBadRequest,
			wantType:   errors.TypeInput,
		},
		{
			name: "missing and unknown enums",
			body: CalculateRequest{
				StockType:      "NEW",
				BuildingType:   apartment,
				DesignCategory: "FA",
				SA4Region:      sydney,
			},
			wantStatus: http.StatusBadRequest,
			wantType:   errors.TypeInput,
			wantFields: []string{"stock_type", "ooa_status"},
		},
		{
			name: "bad as_of",
			body: func() CalculateRequest {
				r := scenario()
				r.AsOf = "01/07/2025"
				return r
			}(),
			wantStatus: http.StatusBadRequest,
			wantType:   errors.TypeInput,
			wantFields: []string{"as_of"},
		},
		{
			name: "itc on non post-2023 stock",
			body: func() CalculateRequest {
				r := scenario()
				r.StockType = "PRE_2023"
				return r
			}(),
			wantStatus: http.StatusBadRequest,
			wantType:   errors.TypeInput,
			wantFields: []string{"itc_claimed"},
		},
		{
			name: "unknown building type",
			body: func() CalculateRequest {
				r := scenario()
				r.BuildingType = "Castle"
				return r
			}(),
			wantStatus: http.StatusBadRequest,
			wantType:   errors.TypeInput,
			wantFields: []string{"building_type"},
		},
		{
			name: "legacy stock on a non-legacy building",
			body: func() CalculateRequest {
				r := scenario()
				r.StockType = "LEGACY"
				r.ITCClaimed = nil
				return r
			}(),
			wantStatus: http.StatusBadRequest,
			wantType:   errors.TypeValidation,
			wantFields: []string{"building_type"},
		},
		{
			name: "region without factor",
			body: func() CalculateRequest {
				r := scenario()
				r.SA4Region = hobart
				return r
			}(),
			wantStatus: http.StatusNotFound,
			wantType:   errors.TypeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/v1/sda/calculate", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			body := decodeError(t, rec)
			assert.Equal(t, tt.wantType, body.Type)
			assert.NotEmpty(t, body.Detail)

			var fields []string
			for _, f := range body.Errors {
				fields = append(fields, f.Field)
			}
			if tt.wantFields != nil {
				assert.ElementsMatch(t, tt.wantFields, fields)
			}
		})
	}
}

func TestCalculateNotFoundNamesTable(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, testSnapshot(t))
	req := scenario()
	req.SA4Region = hobart

	rec := do(t, s, http.MethodPost, "/api/v1/sda/calculate", req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, types.TableLocationFactor, body.Context["table"])
}

func TestCalculateWithoutSnapshot(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, nil)
	rec := do(t, s, http.MethodPost, "/api/v1/sda/calculate", scenario())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOptions(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, testSnapshot(t))

	t.Run("no filters", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/v1/sda/options", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var opts options.Options
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opts))
		assert.Equal(t, types.AllStockTypes, opts.StockTypes)
		assert.Len(t, opts.BuildingTypes, 3)
		assert.Empty(t, opts.DesignCategories)
		require.Len(t, opts.SA4Regions, 2)
		assert.Equal(t, sydney, opts.SA4Regions[0].Name)
	})

	t.Run("stock and building", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/v1/sda/options?stock_type=EXISTING&building_type="+strings.ReplaceAll(house, " ", "%20"), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var opts options.Options
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opts))
		assert.Len(t, opts.BuildingTypes, 2)

		var codes []types.DesignCategory
		for _, d := range opts.DesignCategories {
			codes = append(codes, d.Code)
		}
		assert.Equal(t, types.AllDesignCategories, codes)
	})

	t.Run("unknown stock type", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/v1/sda/options?stock_type=NEW", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestBuildingTypesAndRegions(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, testSnapshot(t))

	rec := do(t, s, http.MethodGet, "/api/v1/sda/building-types?stock_type=LEGACY", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var buildings []options.BuildingTypeOption
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &buildings))
	require.Len(t, buildings, 1)
	assert.Equal(t, legacy6, buildings[0].Name)

	rec = do(t, s, http.MethodGet, "/api/v1/sda/regions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var regions []options.RegionOption
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &regions))
	assert.Equal(t, []options.RegionOption{
		{Name: sydney, State: types.StateNSW},
		{Name: hobart, State: types.StateTAS},
	}, regions)
}

func TestDBStatus(t *testing.T) {
	snap := testSnapshot(t)
	store := &fakeStore{status: db.Status{
		Tables:      db.TableCounts{BasePrices: 900, LocationFactors: 1600, RentRates: 1, BuildingTypes: 16, Regions: 88},
		Initialized: true,
	}}
	s := newTestServer(t, store, snap)

	rec := do(t, s, http.MethodGet, "/api/v1/admin/db-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DBStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Initialized)
	assert.Equal(t, int64(88), resp.Stats.Regions)
	require.NotNil(t, resp.Snapshot)
	assert.Equal(t, string(snap.ID), resp.Snapshot.ID)
	assert.Equal(t, "database", resp.Snapshot.Source)
	assert.Equal(t, 1, resp.Snapshot.Stats.BasePrices)

	rec = do(t, s, http.MethodGet, "/admin/db-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var unversioned DBStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unversioned))
	assert.Equal(t, resp, unversioned)

	down := newTestServer(t, &fakeStore{pingErr: fmt.Errorf("gone")}, snap)
	rec = do(t, down, http.MethodGet, "/api/v1/admin/db-status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestVersionAndMetrics(t *testing.T) {
	snap := testSnapshot(t)
	s := newTestServer(t, &fakeStore{}, snap)

	rec := do(t, s, http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var v VersionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, VersionResponse{Version: "1.2.3", SnapshotID: string(snap.ID)}, v)

	do(t, s, http.MethodPost, "/api/v1/sda/calculate", scenario())

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sda_calculations_total{outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), `route="/api/v1/sda/calculate"`)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, testSnapshot(t))

	rec := do(t, s, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/v1/sda/calculate", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, testSnapshot(t))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sda/calculate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.Input("bad"), http.StatusBadRequest},
		{errors.Validation(nil), http.StatusBadRequest},
		{errors.NotFound(types.TableBasePrice, "x"), http.StatusNotFound},
		{errors.Integrity(types.TableBasePrice, 2), http.StatusInternalServerError},
		{errors.Storage("down", nil), http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", errors.NotFound(types.TableLocationFactor, "")), http.StatusNotFound},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
		{context.Canceled, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
