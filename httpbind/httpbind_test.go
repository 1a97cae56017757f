package httpbind

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridge "github.com/SimonDaKappa/go-pave-bridge"
)

type updateOrder struct {
	ID      int      `json:"id" in:"path"`
	Token   string   `json:"token" in:"header:X-Token"`
	Session string   `json:"session" in:"cookie:sid" model:"optional"`
	Limit   int      `json:"limit" in:"query" model:"default:'10'"`
	Tags    []string `json:"tags" in:"query:tag" model:"optional"`
	Note    string   `json:"note"`
	Qty     int      `json:"qty" model:"min:'1'"`
}

type signup struct {
	Email string `json:"email" in:"form"`
	Name  string `json:"name" in:"form"`
}

type badLocation struct {
	X int `json:"x" in:"somewhere"`
}

type line struct {
	Qty int `json:"qty"`
}

func schema[M any](t *testing.T, opts bridge.Options) *bridge.Schema {
	t.Helper()
	c, err := bridge.BuildFor[M](opts)
	require.NoError(t, err)
	return c.Default()
}

// serve routes one request through chi so path parameters are set.
func serve(t *testing.T, pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.MethodFunc(req.Method, pattern, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		tag     string
		want    Location
		wantErr bool
	}{
		{"", Location{In: LocationBody}, false},
		{"query", Location{In: LocationQuery}, false},
		{"header:X-Token", Location{In: LocationHeader, Key: "X-Token"}, false},
		{" Path : id ", Location{In: LocationPath, Key: "id"}, false},
		{"nowhere", Location{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := ParseLocation(tt.tag)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBindLocations(t *testing.T) {
	s := schema[updateOrder](t, bridge.Options{})
	b := NewBinder(BinderOpts{})

	var got *updateOrder
	h := func(w http.ResponseWriter, r *http.Request) {
		out, err := b.Bind(r, s)
		require.NoError(t, err)
		got = out.(*updateOrder)
		w.WriteHeader(http.StatusNoContent)
	}

	req := httptest.NewRequest(http.MethodPut, "/orders/42?tag=a&tag=b", strings.NewReader(`{"note": "fast", "qty": 2, "id": 7}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Token", "secret")
	req.AddCookie(&http.Cookie{Name: "sid", Value: "s-1"})

	rec := serve(t, "/orders/{id}", h, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, &updateOrder{
		ID:      42,
		Token:   "secret",
		Session: "s-1",
		Limit:   10,
		Tags:    []string{"a", "b"},
		Note:    "fast",
		Qty:     2,
	}, got)
}

func TestInputKeepsUnknownBodyKeys(t *testing.T) {
	s := schema[updateOrder](t, bridge.Options{})
	req := httptest.NewRequest(http.MethodPut, "/orders/1?limit=3", strings.NewReader(`{"note": "x", "qty": 1, "extra": true}`))
	req.Header.Set("X-Token", "t")

	in, err := NewBinder(BinderOpts{}).Input(req, s)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"note":  "x",
		"qty":   json.Number("1"),
		"extra": true,
		"token": "t",
		"limit": "3",
	}, in, "path params are absent outside a chi route")

	_, err = s.Load(in)
	var bve *bridge.BridgeValidationError
	require.ErrorAs(t, err, &bve)
	assert.Contains(t, bve.MessagesMap(), "_unknown")
	assert.Contains(t, bve.MessagesMap(), "id")
}

func TestBindForm(t *testing.T) {
	s := schema[signup](t, bridge.Options{})
	form := url.Values{"email": {"ann@example.com"}, "name": {"ann"}}
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	out, err := Bind(req, s)
	require.NoError(t, err)
	assert.Equal(t, &signup{Email: "ann@example.com", Name: "ann"}, out)
}

func TestBindMany(t *testing.T) {
	s := schema[line](t, bridge.Options{Many: true})
	req := httptest.NewRequest(http.MethodPost, "/lines", strings.NewReader(`[{"qty": 1}, {"qty": 2}]`))

	out, err := Bind(req, s)
	require.NoError(t, err)
	assert.Equal(t, []any{&line{Qty: 1}, &line{Qty: 2}}, out)
}

func TestBindTyped(t *testing.T) {
	ts, err := bridge.Typed[line](schema[line](t, bridge.Options{}))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/lines", strings.NewReader(`{"qty": "5"}`))
	rec, err := BindTyped(DefaultBinder, req, ts)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Qty)
}

func TestBindBadRequests(t *testing.T) {
	s := schema[line](t, bridge.Options{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"qty":`},
		{"not an object", `[1, 2]`},
		{"too large", `{"qty": 1, "pad": "` + strings.Repeat("x", 64) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/lines", strings.NewReader(tt.body))
			_, err := NewBinder(BinderOpts{MaxBody: 32}).Bind(req, s)
			assert.ErrorIs(t, err, ErrBadRequest)
			assert.Equal(t, http.StatusBadRequest, StatusOf(err))
		})
	}

	_, err := Bind(httptest.NewRequest(http.MethodGet, "/", nil), schema[badLocation](t, bridge.Options{}))
	assert.ErrorIs(t, err, ErrLocation)
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
}

func TestEmptyBody(t *testing.T) {
	s := schema[line](t, bridge.Options{})
	_, err := Bind(httptest.NewRequest(http.MethodPost, "/lines", nil), s)

	var bve *bridge.BridgeValidationError
	require.ErrorAs(t, err, &bve)
	assert.Equal(t, map[string]any{"qty": []string{"Field required"}}, bve.MessagesMap())
}

func TestHandler(t *testing.T) {
	s := schema[updateOrder](t, bridge.Options{})
	b := NewBinder(BinderOpts{})

	h := b.Handler(s, func(w http.ResponseWriter, r *http.Request, record any) {
		o := record.(*updateOrder)
		w.Header().Set("Content-Type", "application/json")
		out, err := s.Dumps(o)
		require.NoError(t, err)
		_, _ = w.Write(out)
	})

	t.Run("ok", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/orders/3", strings.NewReader(`{"note": "n", "qty": 4}`))
		req.Header.Set("X-Token", "t")
		rec := serve(t, "/orders/{id}", h, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, float64(3), body["id"])
		assert.Equal(t, float64(4), body["qty"])
	})

	t.Run("invalid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/orders/abc", strings.NewReader(`{"note": "n", "qty": 0}`))
		req.Header.Set("X-Token", "t")
		rec := serve(t, "/orders/{id}", h, req)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, http.StatusText(http.StatusUnprocessableEntity), body.Error)
		assert.Contains(t, body.Errors, "id")
		assert.Contains(t, body.Errors, "qty")
		assert.NotContains(t, body.Errors, "token")
	})

	t.Run("bad body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/orders/3", strings.NewReader(`nope`))
		rec := serve(t, "/orders/{id}", h, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var body ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body.Error, "bad request")
		assert.Empty(t, body.Errors)
	})
}
