package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/core/ports"
)

// EquipmentHandler serves the fleet inventory.
type EquipmentHandler struct {
	Registry   ports.AssetRegistry
	Aggregator ports.Aggregator
	logger     *zap.Logger
}

// NewEquipmentHandler creates a new EquipmentHandler
func NewEquipmentHandler(registry ports.AssetRegistry, aggregator ports.Aggregator, logger *zap.Logger) *EquipmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EquipmentHandler{
		Registry:   registry,
		Aggregator: aggregator,
		logger:     logger.Named("equipment"),
	}
}

type createEquipmentRequest struct {
	Name     string `json:"name"`
	CPE      string `json:"cpe"`
	Quantity int    `json:"quantity"`
}

// HandleList returns every registered asset.
func (h *EquipmentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Registry.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Asset{"equipments": assets})
}

// HandleCreate registers an asset.
func (h *EquipmentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createEquipmentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	asset, err := h.Registry.Create(r.Context(), req.Name, req.CPE, req.Quantity)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

// HandleDelete removes an asset.
func (h *EquipmentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := assetID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.Registry.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Equipment deleted"})
}

// HandleExposure returns the match count and worst severity of one asset.
func (h *EquipmentHandler) HandleExposure(w http.ResponseWriter, r *http.Request) {
	id, err := assetID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	asset, err := h.Registry.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Aggregator.ComputeAssetExposure(r.Context(), asset))
}

func assetID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid equipment id %q", domain.ErrInvalidInput, raw)
	}
	return id, nil
}
