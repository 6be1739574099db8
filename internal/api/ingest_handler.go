package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/snarg/zmeta/internal/schema"
)

// Ingester is the subset of ingest.Pipeline the HTTP surface depends on.
type Ingester interface {
	Ingest(raw []byte, context string) (*schema.Event, error)
}

// IngestHandler serves POST /ingest: validate-or-adapt and
// accept a single JSON payload over HTTP, the sibling transport to UDP.
type IngestHandler struct {
	pipeline Ingester
	hub      SubscriberCounter
	log      zerolog.Logger
}

func NewIngestHandler(pipeline Ingester, hub SubscriberCounter, log zerolog.Logger) *IngestHandler {
	return &IngestHandler{pipeline: pipeline, hub: hub, log: log.With().Str("component", "ingest_handler").Logger()}
}

type ingestOKResponse struct {
	OK          bool `json:"ok"`
	BroadcastTo int  `json:"broadcast_to"`
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		WriteError(w, http.StatusUnprocessableEntity, "missing request body")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "failed to read request body")
		return
	}

	if _, err := h.pipeline.Ingest(body, "http"); err != nil {
		h.writeIngestError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, ingestOKResponse{
		OK:          true,
		BroadcastTo: h.hub.SubscriberCount(),
	})
}

// writeIngestError maps the schema error taxonomy to the 422 body the
// ingest endpoint always returns on a rejected payload: only
// InvalidPayload (and its UnsupportedSchemaVersion/UnknownModality
// siblings) ever reach here, since everything past validation is
// recovered internally and never denies acceptance.
func (h *IngestHandler) writeIngestError(w http.ResponseWriter, err error) {
	var invalid *schema.InvalidPayloadError
	var unsupported *schema.UnsupportedSchemaVersionError
	var unknownMod *schema.UnknownModalityError

	switch {
	case errors.As(err, &invalid):
		WriteError(w, http.StatusUnprocessableEntity, invalid.Error())
	case errors.As(err, &unsupported):
		WriteError(w, http.StatusUnprocessableEntity, unsupported.Error())
	case errors.As(err, &unknownMod):
		WriteError(w, http.StatusUnprocessableEntity, unknownMod.Error())
	default:
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
	}
}
