package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/matt-riley/promoz/internal/core"
	"github.com/matt-riley/promoz/internal/metrics"
	"github.com/matt-riley/promoz/internal/middleware"
	"github.com/matt-riley/promoz/internal/service"
)

const defaultMaxJSONBodyBytes = 1 << 20

var errJSONBodyTooLarge = errors.New("json request body too large")

type HTTPServer struct {
	service          Service
	logger           *slog.Logger
	metrics          *metrics.Metrics
	checkLimiter     *middleware.RateLimiter
	maxJSONBodyBytes int64
}

type HTTPOption func(*HTTPServer)

func WithMaxJSONBodySize(size int64) HTTPOption {
	return func(s *HTTPServer) {
		if size > 0 {
			s.maxJSONBodyBytes = size
		}
	}
}

func WithLogger(logger *slog.Logger) HTTPOption {
	return func(s *HTTPServer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records per-route HTTP metrics and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) HTTPOption {
	return func(s *HTTPServer) {
		s.metrics = m
	}
}

// WithCheckRateLimiter throttles the check endpoint per client IP.
func WithCheckRateLimiter(rl *middleware.RateLimiter) HTTPOption {
	return func(s *HTTPServer) {
		s.checkLimiter = rl
	}
}

type advantageRequest struct {
	Percent *float64 `json:"percent"`
}

type createPromoCodeRequest struct {
	Name      string            `json:"name"`
	Advantage *advantageRequest `json:"advantage"`
	core.RestrictionSpec
}

type promoCodeResponse struct {
	Name         string                 `json:"name"`
	Advantage    core.Advantage         `json:"advantage"`
	Restrictions []core.RestrictionSpec `json:"restrictions"`
}

type checkResponse struct {
	Name      string          `json:"name"`
	Status    core.Status     `json:"status"`
	Advantage *core.Advantage `json:"advantage,omitempty"`
	Reasons   string          `json:"reasons,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func NewHTTPHandler(svc Service, opts ...HTTPOption) http.Handler {
	if svc == nil {
		panic("service is nil")
	}

	server := &HTTPServer{
		service:          svc,
		logger:           slog.Default(),
		maxJSONBodyBytes: defaultMaxJSONBodyBytes,
	}
	for _, opt := range opts {
		opt(server)
	}

	r := chi.NewRouter()
	r.Use(middleware.HTTPRequestLogging(server.logger))
	if server.metrics != nil {
		r.Use(server.metrics.HTTPMiddleware)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	check := http.Handler(http.HandlerFunc(server.handleCheckPromoCode))
	if server.checkLimiter != nil {
		var onLimited func()
		if server.metrics != nil {
			onLimited = server.metrics.IncRateLimited
		}
		check = middleware.HTTPRateLimit(server.checkLimiter, onLimited)(check)
	}

	r.Post("/v1/promo-codes", server.handleCreatePromoCode)
	r.Get("/v1/promo-codes", server.handleListPromoCodes)
	r.Method(http.MethodGet, "/v1/promo-codes/check", check)
	r.Get("/v1/promo-codes/{name}", server.handleGetPromoCode)
	r.Get("/healthz", server.handleHealthz)
	if server.metrics != nil {
		r.Method(http.MethodGet, "/metrics", server.metrics.Handler())
	}

	return r
}

func (s *HTTPServer) handleCreatePromoCode(w http.ResponseWriter, r *http.Request) {
	var body createPromoCodeRequest
	if err := s.decodeJSONBody(w, r, &body); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	req := service.CreateRequest{
		Name:         body.Name,
		Restrictions: body.RestrictionSpec,
	}
	if body.Advantage != nil {
		req.AdvantagePercent = body.Advantage.Percent
	}

	created, err := s.service.CreatePromoCode(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPromoCodeResponse(created))
}

func (s *HTTPServer) handleGetPromoCode(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	promo, err := s.service.GetPromoCode(r.Context(), name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPromoCodeResponse(promo))
}

func (s *HTTPServer) handleListPromoCodes(w http.ResponseWriter, r *http.Request) {
	promos, err := s.service.ListPromoCodes(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]promoCodeResponse, 0, len(promos))
	for _, promo := range promos {
		out = append(out, toPromoCodeResponse(promo))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) handleCheckPromoCode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	name := strings.TrimSpace(query.Get("name"))
	if name == "" {
		writeJSONErrorField(w, http.StatusBadRequest, "name", "name is required")
		return
	}

	age, err := parseAge(query.Get("age"))
	if err != nil {
		writeJSONErrorField(w, http.StatusBadRequest, "age", err.Error())
		return
	}

	result, err := s.service.CheckPromoCode(r.Context(), service.CheckRequest{
		Name: name,
		Age:  age,
		Town: query.Get("town"),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, checkResponse{
		Name:      result.Name,
		Status:    result.Status,
		Advantage: result.Advantage,
		Reasons:   result.Reasons,
	})
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseAge returns nil for an absent age so the restriction engine can report
// it as missing.
func parseAge(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	age, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(age) || math.IsInf(age, 0) {
		return nil, errors.New("age must be a valid number")
	}
	return &age, nil
}

func toPromoCodeResponse(promo core.PromoCode) promoCodeResponse {
	return promoCodeResponse{
		Name:         promo.Name,
		Advantage:    promo.Advantage,
		Restrictions: core.Specs(promo.Restrictions),
	}
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *core.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSONErrorField(w, http.StatusBadRequest, validationErr.Field, validationErr.Message)
	case errors.Is(err, service.ErrPromoCodeExists):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrPromoCodeNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled):
		writeJSONError(w, http.StatusRequestTimeout, "request canceled")
	default:
		middleware.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSONErrorField(w http.ResponseWriter, status int, field, message string) {
	writeJSON(w, status, errorResponse{Error: message, Field: field})
}

func writeJSONDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errJSONBodyTooLarge) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		writeJSONErrorField(w, http.StatusBadRequest, typeErr.Field,
			fmt.Sprintf("%s must be a valid %s", typeErr.Field, jsonTypeName(typeErr.Type)))
		return
	}

	if msg, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		writeJSONError(w, http.StatusBadRequest, "unknown field "+msg)
		return
	}

	writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
}

func jsonTypeName(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int64, reflect.Int32:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *HTTPServer) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return io.EOF
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxJSONBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return normalizeJSONDecodeError(err)
	}

	var trailing json.RawMessage
	if err := decoder.Decode(&trailing); !errors.Is(err, io.EOF) {
		if err := normalizeJSONDecodeError(err); errors.Is(err, errJSONBodyTooLarge) {
			return err
		}
		return errors.New("request body must contain a single JSON object")
	}

	return nil
}

func normalizeJSONDecodeError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return errJSONBodyTooLarge
	}
	return err
}
