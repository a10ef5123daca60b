// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package irc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ergochat/bouncer/irc/canon"
	"github.com/ergochat/bouncer/irc/history"
	"github.com/ergochat/bouncer/irc/logger"
)

const (
	apiMaxRequestBytes  = 64 * 1024
	apiQueueTimeout     = 5 * time.Second
	apiHistoryLimit     = 100
	apiHistoryLimitHard = 1000
)

// BouncerStatus is the live state reported by GET /v1/status.
type BouncerStatus struct {
	Origin  string `json:"origin"`
	Clients int    `json:"clients"`
}

// API is the HTTP control interface. It is a Sink of the bounce loop that
// ignores the origin's traffic and feeds authorized requests to the origin.
type API struct {
	config  *APIConfig
	logger  *logger.Manager
	mux     *http.ServeMux
	status  func() BouncerStatus
	history *history.Buffer

	messages chan canon.Message

	listener   net.Listener
	httpServer *http.Server
}

// NewAPI builds the API; status and history may be nil.
func NewAPI(config *APIConfig, logger *logger.Manager, status func() BouncerStatus, history *history.Buffer) *API {
	api := &API{
		config:   config,
		logger:   logger,
		mux:      http.NewServeMux(),
		status:   status,
		history:  history,
		messages: make(chan canon.Message, config.QueueSize),
	}

	api.mux.HandleFunc("POST /v1/send", api.handleSend)
	api.mux.HandleFunc("GET /v1/status", api.handleStatus)
	api.mux.HandleFunc("GET /v1/history", api.handleHistory)
	api.mux.Handle("GET /metrics", promhttp.Handler())

	return api
}

// Listen binds the configured address and serves in the background.
func (a *API) Listen() (err error) {
	a.listener, err = net.Listen("tcp", a.config.Listen)
	if err != nil {
		return err
	}
	a.httpServer = &http.Server{
		Handler:      a,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		defer HandlePanic(a.logger)
		if err := a.httpServer.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("api", "server stopped", err.Error())
		}
	}()
	a.logger.Info("api", "listening", a.listener.Addr().String())
	return nil
}

func (a *API) Close() error {
	if a.httpServer == nil {
		return nil
	}
	return a.httpServer.Close()
}

// Messages carries requests to be relayed to the origin.
func (a *API) Messages() <-chan canon.Message {
	return a.messages
}

// Broadcast discards the message: the API only listens to its callers.
func (a *API) Broadcast(message canon.Message) error {
	return nil
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer HandlePanic(a.logger)

	defer a.logger.Debug("api", r.Method, r.URL.Path)

	if a.checkBearerAuth(r.Header.Get("Authorization")) {
		a.mux.ServeHTTP(w, r)
	} else {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
}

func (a *API) checkBearerAuth(authHeader string) (authorized bool) {
	if authHeader == "" {
		return false
	}
	if !a.config.Enabled {
		return false
	}
	spaceIdx := strings.IndexByte(authHeader, ' ')
	if spaceIdx < 0 {
		return false
	}
	if !strings.EqualFold("Bearer", authHeader[:spaceIdx]) {
		return false
	}
	providedToken := authHeader[spaceIdx+1:]
	providedTokenBytes := []byte(providedToken)
	for _, tokenBytes := range a.config.bearerTokenBytes {
		if subtle.ConstantTimeCompare(tokenBytes, providedTokenBytes) == 1 {
			return true
		}
	}
	if a.config.JWT.Enabled {
		principal, err := a.config.JWT.Validate(providedToken)
		if err == nil {
			a.logger.Debug("api", "authorized by JWT", principal)
			return true
		}
		a.logger.Debug("api", "rejected JWT", err.Error())
	}
	return false
}

func (a *API) writeJSONResponse(response any, status int, w http.ResponseWriter, r *http.Request) {
	j, err := json.Marshal(response)
	if err == nil {
		j = append(j, '\n') // less annoying in curl output
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(j)
	} else {
		a.logger.Error("internal", "failed to serialize API response", r.URL.String(), err.Error())
		http.Error(w, fmt.Sprintf("failed to serialize json response: %v", err), http.StatusInternalServerError)
	}
}

type apiGenericResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

func (a *API) writeError(status int, code string, err error, w http.ResponseWriter, r *http.Request) {
	a.writeJSONResponse(apiGenericResponse{Error: err.Error(), ErrorCode: code}, status, w, r)
}

func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, apiMaxRequestBytes))
	if err != nil {
		a.writeError(http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", err, w, r)
		return
	}
	message, err := canon.Decode(body)
	if err != nil {
		a.writeError(http.StatusBadRequest, "INVALID_MESSAGE", err, w, r)
		return
	}
	switch message.Type {
	case canon.Chat, canon.JoinChannel:
	default:
		a.writeError(http.StatusBadRequest, "UNROUTABLE", fmt.Errorf("%w: %s", ErrUnroutable, message.Type), w, r)
		return
	}

	timer := time.NewTimer(apiQueueTimeout)
	defer timer.Stop()
	select {
	case a.messages <- message:
		a.logger.Info("api", "queued for origin", message.String())
		a.writeJSONResponse(apiGenericResponse{Success: true}, http.StatusOK, w, r)
	case <-timer.C:
		a.writeError(http.StatusServiceUnavailable, "QUEUE_FULL", ErrAPIQueueFull, w, r)
	case <-r.Context().Done():
	}
}

type apiStatusResponse struct {
	apiGenericResponse
	Version string `json:"version"`
	BouncerStatus
	HistoryEnabled bool `json:"history_enabled"`
	HistoryItems   int  `json:"history_items"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := apiStatusResponse{
		apiGenericResponse: apiGenericResponse{Success: true},
		Version:            Ver,
	}
	if a.status != nil {
		response.BouncerStatus = a.status()
	}
	if a.history != nil {
		response.HistoryEnabled = a.history.Enabled()
		response.HistoryItems = a.history.Len()
	}
	a.writeJSONResponse(response, http.StatusOK, w, r)
}

type apiHistoryResponse struct {
	apiGenericResponse
	Items []history.Item `json:"items"`
	// false when part of the requested period was evicted
	Complete      bool       `json:"complete"`
	LastDiscarded *time.Time `json:"last_discarded,omitempty"`
}

// parseHistoryTime parses an RFC 3339 query parameter; empty is the zero time.
func parseHistoryTime(r *http.Request, name string) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return time.Time{}, nil
	}
	result, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q", name, value)
	}
	return result, nil
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil || !a.history.Enabled() {
		a.writeError(http.StatusNotFound, "HISTORY_DISABLED", errors.New("history is disabled"), w, r)
		return
	}

	limit := apiHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			a.writeError(http.StatusBadRequest, "INVALID_LIMIT", fmt.Errorf("invalid limit: %q", limitStr), w, r)
			return
		}
		limit = min(parsed, apiHistoryLimitHard)
	}

	after, err := parseHistoryTime(r, "after")
	if err != nil {
		a.writeError(http.StatusBadRequest, "INVALID_TIME", err, w, r)
		return
	}
	before, err := parseHistoryTime(r, "before")
	if err != nil {
		a.writeError(http.StatusBadRequest, "INVALID_TIME", err, w, r)
		return
	}

	var predicate func(*history.Item) bool
	if channel := r.URL.Query().Get("channel"); channel != "" {
		key := channelKey(channel)
		predicate = func(item *history.Item) bool { return channelKey(item.Channel) == key }
	}

	items, complete := a.history.Between(after, before, predicate, limit)
	response := apiHistoryResponse{
		apiGenericResponse: apiGenericResponse{Success: true},
		Items:              items,
		Complete:           complete,
	}
	if response.Items == nil {
		response.Items = []history.Item{}
	}
	if lastDiscarded := a.history.LastDiscarded(); !lastDiscarded.IsZero() {
		response.LastDiscarded = &lastDiscarded
	}
	a.writeJSONResponse(response, http.StatusOK, w, r)
}
