// README: Order handlers: placement, shop/rider lifecycle actions, payment, listing and live ETA.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hyperlocal/internal/http/middleware"
	"hyperlocal/internal/modules/dispatch"
	"hyperlocal/internal/modules/eta"
	"hyperlocal/internal/modules/order"
	"hyperlocal/internal/types"
)

type OrderHandler struct {
	order    *order.Service
	dispatch *dispatch.Service
	tracker  *eta.Tracker
}

// NewOrderHandler builds the handler. dispatcher and tracker may be nil, in
// which case their routes answer 503.
func NewOrderHandler(svc *order.Service, dispatcher *dispatch.Service, tracker *eta.Tracker) *OrderHandler {
	return &OrderHandler{order: svc, dispatch: dispatcher, tracker: tracker}
}

type createOrderReq struct {
	ShopID          string        `json:"shop_id" binding:"required"`
	Items           []order.Item  `json:"items" binding:"required,min=1"`
	Subtotal        float64       `json:"subtotal"`
	DeliveryFee     float64       `json:"delivery_fee"`
	Tax             float64       `json:"tax"`
	TotalAmount     float64       `json:"total_amount"`
	DeliveryAddress order.Address `json:"delivery_address"`
	PaymentMethod   string        `json:"payment_method" binding:"required"`
	Notes           *string       `json:"notes"`
}

type assignReq struct {
	RiderID string `json:"rider_id" binding:"required"`
}

type statusReq struct {
	Status        order.Status         `json:"status" binding:"required"`
	DeliveryTime  *string              `json:"delivery_time"`
	PaymentStatus *order.PaymentStatus `json:"payment_status"`
	Reason        string               `json:"reason"`
}

type paymentReq struct {
	PaymentStatus order.PaymentStatus `json:"payment_status" binding:"required"`
}

type cancelReq struct {
	Reason string `json:"reason"`
}

type suggestionResp struct {
	Found      bool                 `json:"found"`
	Assignment *dispatch.Assignment `json:"assignment,omitempty"`
}

type listReq struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

func (r listReq) query() order.ListQuery {
	q := order.ListQuery{Limit: r.Limit, Offset: r.Offset}
	if r.Status != "" {
		s := order.Status(r.Status)
		q.Status = &s
	}
	return q
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if !isValidID(req.ShopID) {
		writeError(c, http.StatusBadRequest, "invalid shop_id")
		return
	}
	id, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		CustomerID:      types.ID(middleware.CallerUID(c)),
		ShopID:          types.ID(req.ShopID),
		Items:           req.Items,
		Subtotal:        req.Subtotal,
		DeliveryFee:     req.DeliveryFee,
		Tax:             req.Tax,
		TotalAmount:     req.TotalAmount,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	h.respondOrder(c, http.StatusCreated, id)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.order.View(c.Request.Context(), types.ID(id), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

// List returns the caller's own orders.
func (h *OrderHandler) List(c *gin.Context) {
	var req listReq
	if err := c.ShouldBindQuery(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid query")
		return
	}
	orders, err := h.order.ListByUser(c.Request.Context(), types.ID(middleware.CallerUID(c)), req.query())
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) ListByShop(c *gin.Context) {
	shopID, ok := pathID(c)
	if !ok {
		return
	}
	var req listReq
	if err := c.ShouldBindQuery(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid query")
		return
	}
	orders, err := h.order.ListByShop(c.Request.Context(), types.ID(shopID), types.ID(middleware.CallerUID(c)), req.query())
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) Accept(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := h.order.Accept(c.Request.Context(), order.AcceptCommand{
		OrderID: types.ID(id),
		ActorID: types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	h.respondOrder(c, http.StatusOK, types.ID(id))
}

func (h *OrderHandler) Assign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(req.RiderID) {
		writeError(c, http.StatusBadRequest, "rider_id required")
		return
	}
	err := h.order.AssignRider(c.Request.Context(), order.AssignRiderCommand{
		OrderID: types.ID(id),
		RiderID: types.ID(req.RiderID),
		ActorID: types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	h.respondOrder(c, http.StatusOK, types.ID(id))
}

// Dispatch picks the nearest available rider and assigns them.
func (h *OrderHandler) Dispatch(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if h.dispatch == nil {
		writeError(c, http.StatusServiceUnavailable, "dispatch unavailable")
		return
	}
	res, err := h.dispatch.AutoAssign(c.Request.Context(), dispatch.AutoAssignCommand{
		OrderID: types.ID(id),
		ActorID: types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// SuggestRider previews the rider auto-dispatch would pick, without claiming.
func (h *OrderHandler) SuggestRider(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if h.dispatch == nil {
		writeError(c, http.StatusServiceUnavailable, "dispatch unavailable")
		return
	}
	if _, err := h.order.View(c.Request.Context(), types.ID(id), types.ID(middleware.CallerUID(c))); err != nil {
		writeOrderError(c, err)
		return
	}
	a, found, err := h.dispatch.Suggest(c.Request.Context(), types.ID(id))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	resp := suggestionResp{Found: found}
	if found {
		resp.Assignment = &a
	}
	writeJSON(c, http.StatusOK, resp)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	err := h.order.UpdateStatus(c.Request.Context(), order.UpdateStatusCommand{
		OrderID:       types.ID(id),
		Status:        req.Status,
		DeliveryTime:  req.DeliveryTime,
		PaymentStatus: req.PaymentStatus,
		ActorID:       types.ID(middleware.CallerUID(c)),
		Reason:        req.Reason,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	h.respondOrder(c, http.StatusOK, types.ID(id))
}

// UpdatePayment is a back-office operation reserved for the admin role.
func (h *OrderHandler) UpdatePayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if middleware.CallerRole(c) != middleware.RoleAdmin {
		writeError(c, http.StatusForbidden, "forbidden: admin role required")
		return
	}
	var req paymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "payment_status required")
		return
	}
	err := h.order.UpdatePayment(c.Request.Context(), order.UpdatePaymentCommand{
		OrderID:       types.ID(id),
		PaymentStatus: req.PaymentStatus,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	h.respondOrder(c, http.StatusOK, types.ID(id))
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req cancelReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID: types.ID(id),
		Reason:  req.Reason,
		ActorID: types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	h.respondOrder(c, http.StatusOK, types.ID(id))
}

func (h *OrderHandler) ETA(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if h.tracker == nil {
		writeError(c, http.StatusServiceUnavailable, "eta unavailable")
		return
	}
	if _, err := h.order.View(c.Request.Context(), types.ID(id), types.ID(middleware.CallerUID(c))); err != nil {
		writeOrderError(c, err)
		return
	}
	tr, err := h.tracker.Track(c.Request.Context(), types.ID(id))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, tr)
}

func (h *OrderHandler) respondOrder(c *gin.Context, status int, id types.ID) {
	o, err := h.order.Get(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, status, o)
}
