package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerroom/go/internal/models"
	"github.com/mcdev12/pokerroom/go/internal/rooms"
	"github.com/mcdev12/pokerroom/go/internal/session"
)

// RoomCatalog is the room metadata API behind the REST routes
type RoomCatalog interface {
	CreateRoom(ctx context.Context, req rooms.CreateRoomRequest) (*models.RoomRecord, error)
	GetRoom(ctx context.Context, id string) (*models.RoomRecord, error)
	GetRoomByCode(ctx context.Context, code string) (*models.RoomRecord, error)
}

// RoomResponse is a room record plus whether a session is running in it
type RoomResponse struct {
	*models.RoomRecord
	Live         bool `json:"live"`
	Participants int  `json:"participants"`
}

// RoomSummary describes one live room
type RoomSummary struct {
	RoomID       string    `json:"room_id"`
	Topic        string    `json:"topic"`
	HostID       string    `json:"host_id"`
	Participants int       `json:"participants"`
	Revealed     bool      `json:"revealed"`
	Rounds       int       `json:"rounds"`
	CreatedAt    time.Time `json:"created_at"`
}

// StateHandler handles HTTP requests for rooms and their live state
type StateHandler struct {
	catalog RoomCatalog
	store   *session.Store
}

// NewStateHandler creates a new state handler
func NewStateHandler(catalog RoomCatalog, store *session.Store) *StateHandler {
	return &StateHandler{
		catalog: catalog,
		store:   store,
	}
}

// HandleCreateRoom handles POST /api/rooms
func (h *StateHandler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req rooms.CreateRoomRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	// Ids are always server issued
	req.ID = ""

	rec, err := h.catalog.CreateRoom(r.Context(), req)
	if err != nil {
		if errors.Is(err, rooms.ErrValidation) || errors.Is(err, rooms.ErrCodeTaken) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("failed to create room")
		http.Error(w, "Failed to create room", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, h.roomResponse(rec))
}

// HandleGetRoom handles GET /api/rooms/{id}
func (h *StateHandler) HandleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	rec, err := h.catalog.GetRoom(r.Context(), roomID)
	if err != nil {
		h.lookupFailed(w, err, roomID)
		return
	}
	writeJSON(w, http.StatusOK, h.roomResponse(rec))
}

// HandleGetRoomByCode handles GET /api/room-codes/{code}
func (h *StateHandler) HandleGetRoomByCode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	rec, err := h.catalog.GetRoomByCode(r.Context(), code)
	if err != nil {
		h.lookupFailed(w, err, code)
		return
	}
	writeJSON(w, http.StatusOK, h.roomResponse(rec))
}

// HandleGetRoomState handles GET /api/rooms/{id}/state. Votes stay masked
// until the room is revealed, the same as on the socket.
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	room, err := h.store.Get(roomID)
	if err != nil {
		http.Error(w, "Room is not live", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, NewRoomView(room))
}

// HandleGetActiveRooms handles GET /api/rooms/active
func (h *StateHandler) HandleGetActiveRooms(w http.ResponseWriter, r *http.Request) {
	summaries := make([]RoomSummary, 0)
	for _, roomID := range h.store.RoomIDs() {
		room, err := h.store.Get(roomID)
		if err != nil {
			// Deleted since listing
			continue
		}
		summaries = append(summaries, RoomSummary{
			RoomID:       room.ID,
			Topic:        room.Topic,
			HostID:       room.HostID,
			Participants: len(room.Participants),
			Revealed:     room.Revealed,
			Rounds:       len(room.VoteHistory),
			CreatedAt:    room.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *StateHandler) roomResponse(rec *models.RoomRecord) RoomResponse {
	resp := RoomResponse{RoomRecord: rec}
	if room, err := h.store.Get(rec.ID); err == nil {
		resp.Live = true
		resp.Participants = len(room.Participants)
	}
	return resp
}

func (h *StateHandler) lookupFailed(w http.ResponseWriter, err error, ref string) {
	if errors.Is(err, rooms.ErrNotFound) {
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}
	log.Error().Err(err).Str("room_ref", ref).Msg("failed to look up room")
	http.Error(w, "Failed to look up room", http.StatusServiceUnavailable)
}

// RegisterStateRoutes registers room routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/rooms", h.HandleCreateRoom)
	mux.HandleFunc("GET /api/rooms/active", h.HandleGetActiveRooms)
	mux.HandleFunc("GET /api/rooms/{id}", h.HandleGetRoom)
	mux.HandleFunc("GET /api/rooms/{id}/state", h.HandleGetRoomState)
	mux.HandleFunc("GET /api/room-codes/{code}", h.HandleGetRoomByCode)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
