// Package rpcserver serves the ledger as a small JSON API.
package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/AsynkronIT/protoactor-go/actor"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quorumcontrol/ownable/capability"
	"github.com/quorumcontrol/ownable/eventlog"
	"github.com/quorumcontrol/ownable/ledger"
	"github.com/quorumcontrol/ownable/ownership"
)

var log = logging.Logger("rpcserver")

type Server struct {
	ledger *ledger.Ledger
	router *mux.Router
}

type DeployRequest struct {
	Creator string `json:"creator"`
	Owner   string `json:"owner"`
}

type DeployResponse struct {
	Address string `json:"address"`
}

type OwnerResponse struct {
	Owner string `json:"owner"`
	Owned bool   `json:"owned"`
}

type TransferRequest struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

type SupportsResponse struct {
	InterfaceID string `json:"interfaceId"`
	Supported   bool   `json:"supported"`
}

type EntitiesResponse struct {
	Entities []string `json:"entities"`
}

type Event struct {
	Cid           string `json:"cid"`
	Sequence      uint64 `json:"sequence"`
	Previous      string `json:"previous,omitempty"`
	PreviousOwner string `json:"previousOwner"`
	NewOwner      string `json:"newOwner"`
}

type EventsResponse struct {
	Topic  string   `json:"topic"`
	Events []*Event `json:"events"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(l *ledger.Ledger) *Server {
	s := &Server{
		ledger: l,
		router: mux.NewRouter(),
	}
	s.router.HandleFunc("/entities", s.deploy).Methods(http.MethodPost)
	s.router.HandleFunc("/entities", s.entities).Methods(http.MethodGet)
	s.router.HandleFunc("/entities/{address}/owner", s.owner).Methods(http.MethodGet)
	s.router.HandleFunc("/entities/{address}/transfer", s.transfer).Methods(http.MethodPost)
	s.router.HandleFunc("/entities/{address}/supports/{interfaceID}", s.supports).Methods(http.MethodGet)
	s.router.HandleFunc("/entities/{address}/events", s.events).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler())
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on ln until ctx is done. It returns only after
// in-flight requests have finished or the shutdown grace period ran out.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler: s.router,
	}
	shutdown := make(chan struct{})
	go func() {
		defer close(shutdown)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warningf("error shutting down: %v", err)
		}
	}()
	log.Infof("serving on %s", ln.Addr())
	err := srv.Serve(ln)
	if err == http.ErrServerClosed {
		<-shutdown
		return nil
	}
	return err
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case ownership.IsUnauthorized(err):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrEntityNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, actor.ErrTimeout),
		errors.Is(err, ledger.ErrOutcomeUnknown):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		log.Errorf("error handling request: %v", err)
	}
	writeJSON(w, status, &errorResponse{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, &errorResponse{Error: err.Error()})
}

func (s *Server) entityFromPath(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	addr, err := parseAddress(mux.Vars(r)["address"])
	if err != nil {
		badRequest(w, err)
		return addr, false
	}
	return addr, true
}

func (s *Server) deploy(w http.ResponseWriter, r *http.Request) {
	req := &DeployRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		badRequest(w, fmt.Errorf("error decoding request: %v", err))
		return
	}
	creator, err := parseAddress(req.Creator)
	if err != nil {
		badRequest(w, err)
		return
	}
	owner := creator
	if req.Owner != "" {
		if owner, err = parseAddress(req.Owner); err != nil {
			badRequest(w, err)
			return
		}
	}

	addr, err := s.ledger.Deploy(r.Context(), creator, owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &DeployResponse{Address: addr.Hex()})
}

func (s *Server) entities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.ledger.Entities(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := &EntitiesResponse{Entities: make([]string, len(entities))}
	for i, e := range entities {
		resp.Entities[i] = e.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) owner(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.entityFromPath(w, r)
	if !ok {
		return
	}
	owner, err := s.ledger.Owner(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &OwnerResponse{Owner: owner.Hex(), Owned: owner != ownership.Zero})
}

// transfer trusts the caller field: authenticating it is up to whatever sits
// in front of this server.
func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.entityFromPath(w, r)
	if !ok {
		return
	}
	req := &TransferRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		badRequest(w, fmt.Errorf("error decoding request: %v", err))
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		badRequest(w, err)
		return
	}
	newOwner, err := parseAddress(req.NewOwner)
	if err != nil {
		badRequest(w, err)
		return
	}

	if err := s.ledger.TransferOwnership(r.Context(), addr, caller, newOwner); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &OwnerResponse{Owner: newOwner.Hex(), Owned: newOwner != ownership.Zero})
}

func (s *Server) supports(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.entityFromPath(w, r)
	if !ok {
		return
	}
	id, err := capability.ParseInterfaceID(mux.Vars(r)["interfaceID"])
	if err != nil {
		badRequest(w, err)
		return
	}
	supported, err := s.ledger.SupportsInterface(r.Context(), addr, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &SupportsResponse{InterfaceID: id.String(), Supported: supported})
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.entityFromPath(w, r)
	if !ok {
		return
	}

	filter := eventlog.Filter{}
	query := r.URL.Query()
	if prev := query.Get("previousOwner"); prev != "" {
		id, err := parseAddress(prev)
		if err != nil {
			badRequest(w, err)
			return
		}
		filter.PreviousOwner = &id
	}
	if next := query.Get("newOwner"); next != "" {
		id, err := parseAddress(next)
		if err != nil {
			badRequest(w, err)
			return
		}
		filter.NewOwner = &id
	}

	records, err := s.ledger.History(r.Context(), addr, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := &EventsResponse{
		Topic:  ownership.EventTopic.Hex(),
		Events: make([]*Event, len(records)),
	}
	for i, rec := range records {
		resp.Events[i] = EventFromRecord(rec)
	}
	writeJSON(w, http.StatusOK, resp)
}

func EventFromRecord(rec *eventlog.Record) *Event {
	evt := &Event{
		Cid:           rec.Cid.String(),
		Sequence:      rec.Sequence,
		PreviousOwner: rec.Event.PreviousOwner.Hex(),
		NewOwner:      rec.Event.NewOwner.Hex(),
	}
	if rec.Previous != nil {
		evt.Previous = rec.Previous.String()
	}
	return evt
}
