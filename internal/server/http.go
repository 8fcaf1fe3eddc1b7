package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"quorumcache/internal/metrics"
	"quorumcache/internal/storage"
	"quorumcache/internal/transport"
)

const transportHTTP = "http"

// maxBodyBytes bounds a PUT request body.
const maxBodyBytes = 1 << 20

type httpHandler struct {
	nodeID  string
	store   storage.Store
	logger  *zap.Logger
	metrics *metrics.Server
}

// NewHTTPHandler returns the /cache API for store:
//
//	GET    /cache                 all entries ordered by key
//	GET    /cache/{key}           {"key":k,"value":v} or 404
//	PUT    /cache/{key}           overwrite with the body's value, echoes the entry
//	PUT    /cache/{key}/{value}   overwrite with the path value, echoes the entry
//	DELETE /cache/{key}           remove, 200 even when absent
func NewHTTPHandler(nodeID string, store storage.Store, logger *zap.Logger, m *metrics.Server) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewServer(nil)
	}
	h := &httpHandler{nodeID: nodeID, store: store, logger: logger, metrics: m}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+transport.CachePath, h.list)
	mux.HandleFunc("GET "+transport.CachePath+"/{key}", h.get)
	mux.HandleFunc("PUT "+transport.CachePath+"/{key}", h.putBody)
	mux.HandleFunc("PUT "+transport.CachePath+"/{key}/{value}", h.putPath)
	mux.HandleFunc("DELETE "+transport.CachePath+"/{key}", h.remove)
	return mux
}

func (h *httpHandler) list(w http.ResponseWriter, r *http.Request) {
	entries := h.store.Entries()
	h.count("list", http.StatusOK)
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *httpHandler) get(w http.ResponseWriter, r *http.Request) {
	key, ok := h.parseKey(w, r, "read")
	if !ok {
		return
	}

	value, found := h.store.Get(key)
	if !found {
		h.count("read", http.StatusNotFound)
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}

	h.count("read", http.StatusOK)
	h.writeJSON(w, http.StatusOK, transport.EntryBody{Key: key, Value: value})
}

func (h *httpHandler) putBody(w http.ResponseWriter, r *http.Request) {
	key, ok := h.parseKey(w, r, "write")
	if !ok {
		return
	}

	var body transport.EntryBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		h.logger.Debug("invalid write body", zap.String("node", h.nodeID), zap.Error(err))
		h.count("write", http.StatusBadRequest)
		http.Error(w, "body must be {\"key\":k,\"value\":v}", http.StatusBadRequest)
		return
	}
	if body.Key != key {
		h.count("write", http.StatusBadRequest)
		http.Error(w, "body key does not match path key", http.StatusBadRequest)
		return
	}

	h.put(w, key, body.Value)
}

func (h *httpHandler) putPath(w http.ResponseWriter, r *http.Request) {
	key, ok := h.parseKey(w, r, "write")
	if !ok {
		return
	}
	h.put(w, key, r.PathValue("value"))
}

func (h *httpHandler) put(w http.ResponseWriter, key int64, value string) {
	h.store.Put(key, value)
	h.metrics.Keys.Set(float64(h.store.Len()))
	h.logger.Debug("write", zap.String("node", h.nodeID), zap.Int64("key", key))

	h.count("write", http.StatusOK)
	h.writeJSON(w, http.StatusOK, transport.EntryBody{Key: key, Value: value})
}

func (h *httpHandler) remove(w http.ResponseWriter, r *http.Request) {
	key, ok := h.parseKey(w, r, "remove")
	if !ok {
		return
	}

	h.store.Delete(key)
	h.metrics.Keys.Set(float64(h.store.Len()))
	h.logger.Debug("remove", zap.String("node", h.nodeID), zap.Int64("key", key))

	h.count("remove", http.StatusOK)
	w.WriteHeader(http.StatusOK)
}

func (h *httpHandler) parseKey(w http.ResponseWriter, r *http.Request, op string) (int64, bool) {
	raw := r.PathValue("key")
	key, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.count(op, http.StatusBadRequest)
		http.Error(w, "key must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return key, true
}

func (h *httpHandler) count(op string, code int) {
	h.metrics.Requests.WithLabelValues(transportHTTP, op, strconv.Itoa(code)).Inc()
}

func (h *httpHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("failed to write response", zap.String("node", h.nodeID), zap.Error(err))
	}
}
