package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"checkride/internal/modules/booking"
	"checkride/internal/modules/matching"
	"checkride/internal/modules/pricing"
	"checkride/internal/notify"
	"checkride/internal/types"
)

type fixedGeocoder struct {
	pt types.Point
}

func (f *fixedGeocoder) Geocode(_ context.Context, address string) (types.Point, bool, error) {
	if address == "" {
		return types.Point{}, false, nil
	}
	return f.pt, true, nil
}

type fixedMatcher struct {
	candidates []matching.Candidate
}

func (f *fixedMatcher) FindCandidates(context.Context, types.Point, float64, string) ([]matching.Candidate, error) {
	return f.candidates, nil
}

type stubRefunder struct {
	refunded []string
	err      error
}

func (r *stubRefunder) Refund(paymentIntentID string) error {
	if r.err != nil {
		return r.err
	}
	r.refunded = append(r.refunded, paymentIntentID)
	return nil
}

type testEnv struct {
	store    *booking.MemoryStore
	refunder *stubRefunder
	router   *gin.Engine
}

func newTestEnv(t *testing.T, candidates []matching.Candidate) *testEnv {
	return newTestEnvWithStore(t, booking.NewMemoryStore(), candidates)
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createBooking(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/bookings", gin.H{
		"studentFirstName": "Jane",
		"studentLastName":  "Doe",
		"studentEmail":     "jane@students.test",
		"preferredAirport": "KPNE",
		"checkRideType":    "Private",
		"preferredDate":    "2026-11-03",
		"preferredTime":    "09:00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["bookingId"].(string)
}

func TestCreateBooking_ContactsShortlist(t *testing.T) {
	store := booking.NewMemoryStore()
	dpe := store.RegisterExaminer("Chief DPE", "chief@examiners.test")
	env := newTestEnvWithStore(t, store, []matching.Candidate{
		{ExaminerID: dpe, Name: "Chief DPE", Email: "chief@examiners.test", DistanceKm: 12},
	})

	id := env.createBooking(t)
	require.Regexp(t, `^BK\d{6}$`, id)

	w := env.do(t, http.MethodGet, "/api/bookings/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, string(booking.StatusExaminersContacted), resp["status"])
}

func newTestEnvWithStore(t *testing.T, store *booking.MemoryStore, candidates []matching.Candidate) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	bookings := booking.NewService(store, notify.Noop{}, notify.Noop{}, notify.Noop{}, log)
	pricingSvc := pricing.NewService(pricing.NewStaticStore(nil))
	flow := NewFlow(bookings,
		&fixedGeocoder{pt: types.Point{Lat: 40.0, Lng: -75.0}},
		&fixedMatcher{candidates: candidates},
		notify.Noop{}, log)
	handler := NewBookingHandler(bookings, pricingSvc, flow)
	refunder := &stubRefunder{}
	admin := NewAdminHandler(bookings, refunder, log)

	r := gin.New()
	r.POST("/api/bookings", handler.Create)
	r.GET("/api/bookings/:id", handler.Get)
	r.POST("/api/bookings/:id/cancel", handler.Cancel)
	r.GET("/api/bookings/:id/availability", handler.Availability)
	r.POST("/api/bookings/:id/respond", handler.Respond)
	r.GET("/api/bookings/:id/responses", handler.Responses)
	r.POST("/api/admin/bookings/:id/refund", admin.ProcessRefund)
	return &testEnv{store: store, refunder: refunder, router: r}
}

func TestRespond_FirstAcceptWinsSecondLoses(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createBooking(t)

	w := env.do(t, http.MethodPost, "/api/bookings/"+id+"/respond", gin.H{
		"examinerEmail": "first@examiners.test",
		"examinerName":  "First DPE",
		"response":      "accept",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, true, resp["accepted"])

	// Second accept is a clean loss, still HTTP 200.
	w = env.do(t, http.MethodPost, "/api/bookings/"+id+"/respond", gin.H{
		"examinerEmail": "second@examiners.test",
		"examinerName":  "Second DPE",
		"response":      "accept",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, false, resp["accepted"])

	w = env.do(t, http.MethodGet, "/api/bookings/"+id, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, string(booking.StatusExaminerAssigned), resp["status"])
	require.Equal(t, "First DPE", resp["assignedExaminer"])
}

func TestRespond_DeclineLeavesBookingOpen(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createBooking(t)

	w := env.do(t, http.MethodPost, "/api/bookings/"+id+"/respond", gin.H{
		"examinerEmail": "busy@examiners.test",
		"examinerName":  "Busy DPE",
		"response":      "decline",
		"message":       "fully booked that week",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/bookings/"+id+"/availability", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, true, resp["available"])
}

func TestRespond_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createBooking(t)

	w := env.do(t, http.MethodPost, "/api/bookings/"+id+"/respond", gin.H{
		"examinerEmail": "a@b.c",
		"response":      "maybe",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/bookings/"+id+"/respond", gin.H{
		"response": "accept",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancel_ConflictAfterAssignment(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createBooking(t)

	w := env.do(t, http.MethodPost, "/api/bookings/"+id+"/respond", gin.H{
		"examinerEmail": "dpe@examiners.test",
		"examinerName":  "Chief DPE",
		"response":      "accept",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/bookings/"+id+"/cancel", gin.H{"reason": "changed plans"})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestGet_UnknownBooking(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/bookings/BK999999", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/bookings/garbage", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBooking_BadDate(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodPost, "/api/bookings", gin.H{
		"studentEmail":  "jane@students.test",
		"checkRideType": "Private",
		"preferredDate": "11/03/2026",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResponses_ListsAttempts(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.createBooking(t)

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/api/bookings/"+id+"/respond", gin.H{
			"examinerEmail": fmt.Sprintf("dpe%d@examiners.test", i),
			"examinerName":  fmt.Sprintf("DPE %d", i),
			"response":      "decline",
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do(t, http.MethodGet, "/api/bookings/"+id+"/responses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Responses []map[string]any `json:"responses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Responses, 2)
}
