// README: Booking handlers for create/get/cancel and examiner responses.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"checkride/internal/modules/booking"
	"checkride/internal/modules/pricing"
	"checkride/internal/types"
)

type BookingHandler struct {
	bookings *booking.Service
	pricing  *pricing.Service
	flow     *Flow
}

func NewBookingHandler(bookings *booking.Service, pricingSvc *pricing.Service, flow *Flow) *BookingHandler {
	return &BookingHandler{bookings: bookings, pricing: pricingSvc, flow: flow}
}

type createBookingReq struct {
	StudentFirstName    string  `json:"studentFirstName"`
	StudentLastName     string  `json:"studentLastName"`
	StudentEmail        string  `json:"studentEmail"`
	StudentPhone        string  `json:"studentPhone"`
	PreferredAirport    string  `json:"preferredAirport"`
	CheckRideType       string  `json:"checkRideType"`
	PreferredDate       string  `json:"preferredDate"` // YYYY-MM-DD
	PreferredTime       string  `json:"preferredTime"`
	SpecialRequirements string  `json:"specialRequirements"`
	SearchRadiusKm      float64 `json:"searchRadiusKm"`
}

func (r *createBookingReq) toBooking() (*booking.Booking, error) {
	date, err := time.Parse("2006-01-02", r.PreferredDate)
	if err != nil {
		return nil, err
	}
	radius := r.SearchRadiusKm
	if radius <= 0 {
		radius = 50
	}
	return &booking.Booking{
		StudentFirstName:    r.StudentFirstName,
		StudentLastName:     r.StudentLastName,
		StudentEmail:        r.StudentEmail,
		StudentPhone:        r.StudentPhone,
		StudentAddress:      r.PreferredAirport,
		ExamType:            r.CheckRideType,
		PreferredDate:       date,
		PreferredTime:       r.PreferredTime,
		SpecialRequirements: r.SpecialRequirements,
		SearchRadiusKm:      radius,
	}, nil
}

// Create registers a booking directly, without the payment flow. Used by
// admin tooling and partners invoiced out of band.
func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	b, err := req.toBooking()
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid preferred date, want YYYY-MM-DD")
		return
	}
	amount, err := h.pricing.Quote(c.Request.Context(), b.ExamType)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	b.Amount = amount

	created, err := h.bookings.Create(c.Request.Context(), b)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	h.flow.Activate(c.Request.Context(), created)

	final, err := h.bookings.Get(c.Request.Context(), created.ID)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, bookingView(final))
}

func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.bookings.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, bookingView(b))
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	var req cancelReq
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by student"
	}
	if err := h.bookings.Cancel(c.Request.Context(), types.ID(c.Param("id")), req.Reason); err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookingId": c.Param("id"), "status": booking.StatusCancelled})
}

// Availability is the read examiners poll before committing to a drive out.
// The answer is advisory; Respond re-checks atomically.
func (h *BookingHandler) Availability(c *gin.Context) {
	id := types.ID(c.Param("id"))
	available, err := h.bookings.IsAvailable(c.Request.Context(), id)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bookingId": id, "available": available})
}

type respondReq struct {
	ExaminerEmail string `json:"examinerEmail"`
	ExaminerName  string `json:"examinerName"`
	Response      string `json:"response"` // "accept" or "decline"
	Message       string `json:"message"`
}

// Respond lets an examiner accept or decline. First qualifying accept wins;
// later accepts get a clean "already assigned" answer, never an error.
func (h *BookingHandler) Respond(c *gin.Context) {
	var req respondReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ExaminerEmail == "" {
		writeError(c, http.StatusBadRequest, "examinerEmail is required")
		return
	}
	id := types.ID(c.Param("id"))

	switch req.Response {
	case "accept":
		res, err := h.bookings.Accept(c.Request.Context(), id, req.ExaminerEmail, req.ExaminerName)
		if err != nil {
			writeBookingError(c, err)
			return
		}
		if !res.Won {
			writeJSON(c, http.StatusOK, gin.H{
				"bookingId": id,
				"accepted":  false,
				"reason":    "booking already assigned or no longer available",
			})
			return
		}
		writeJSON(c, http.StatusOK, gin.H{"bookingId": id, "accepted": true})
	case "decline":
		if err := h.bookings.Decline(c.Request.Context(), id, req.ExaminerEmail, req.ExaminerName, req.Message); err != nil {
			writeBookingError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, gin.H{"bookingId": id, "declined": true})
	default:
		writeError(c, http.StatusBadRequest, "response must be accept or decline")
	}
}

func (h *BookingHandler) Responses(c *gin.Context) {
	id := types.ID(c.Param("id"))
	responses, err := h.bookings.Responses(c.Request.Context(), id)
	if err != nil {
		writeBookingError(c, err)
		return
	}
	out := make([]gin.H, 0, len(responses))
	for _, r := range responses {
		out = append(out, gin.H{
			"examinerId":  r.ExaminerID,
			"response":    r.Kind,
			"contactedAt": r.ContactedAt,
			"respondedAt": r.RespondedAt,
			"isWinner":    r.IsWinner,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"bookingId": id, "responses": out})
}

func bookingView(b *booking.Booking) gin.H {
	view := gin.H{
		"bookingId":      b.ID,
		"status":         b.Status,
		"studentName":    b.StudentName(),
		"examType":       b.ExamType,
		"preferredDate":  b.PreferredDate.Format("2006-01-02"),
		"preferredTime":  b.PreferredTime,
		"isPaid":         b.IsPaid,
		"searchRadiusKm": b.SearchRadiusKm,
		"createdAt":      b.CreatedAt,
	}
	if b.AssignedExaminerID != nil {
		view["assignedExaminer"] = b.AssignedExaminerName
	}
	if b.ScheduledDate != nil {
		view["scheduledDate"] = b.ScheduledDate.Format("2006-01-02")
		view["scheduledTime"] = b.ScheduledTime
	}
	return view
}
