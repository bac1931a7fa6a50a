package handlers

import (
	"cmp"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/archive-similarity/internal/constants"
	"github.com/kozaktomas/archive-similarity/internal/fingerprint"
	"github.com/kozaktomas/archive-similarity/internal/similarity"
)

// SimilarityHandler serves queries over a finished run.
type SimilarityHandler struct {
	data *Dataset
	log  *logrus.Logger
}

// NewSimilarityHandler creates a new similarity handler
func NewSimilarityHandler(data *Dataset, log *logrus.Logger) *SimilarityHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SimilarityHandler{data: data, log: log}
}

type PairsResponse struct {
	Count int                        `json:"count"`
	Pairs []similarity.CandidatePair `json:"pairs"`
}

// Pairs lists candidate pairs, optionally filtered by ?group=.
func (h *SimilarityHandler) Pairs(w http.ResponseWriter, r *http.Request) {
	pairs := h.data.Pairs(r.URL.Query().Get("group"))
	if pairs == nil {
		pairs = []similarity.CandidatePair{}
	}
	respondJSON(w, http.StatusOK, PairsResponse{Count: len(pairs), Pairs: pairs})
}

type ClustersResponse struct {
	GroupID  string                      `json:"group_id"`
	Clusters []similarity.VersionCluster `json:"clusters"`
}

// Clusters returns the version clusters of the group in the URL.
func (h *SimilarityHandler) Clusters(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	clusters := h.data.Clusters(groupID)
	if len(clusters) == 0 {
		respondError(w, http.StatusNotFound, "group not found")
		return
	}
	respondJSON(w, http.StatusOK, ClustersResponse{GroupID: groupID, Clusters: clusters})
}

type SearchMatch struct {
	XID       string `json:"xid"`
	GroupID   string `json:"group_id"`
	ScanIndex int    `json:"scan_index"`
	Hash      string `json:"hash"`
	Distance  int    `json:"distance"`
}

type SearchResponse struct {
	Hash     string        `json:"hash"`
	Distance int           `json:"distance"`
	Count    int           `json:"count"`
	Matches  []SearchMatch `json:"matches"`
}

// Search finds photos whose representative hash is within ?distance= of
// ?hash=. Matches are ordered by distance, then xid.
func (h *SimilarityHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	target, err := fingerprint.ParseHex(q.Get("hash"), h.data.HashSize)
	if err != nil {
		h.log.WithField("hash", sanitizeForLog(q.Get("hash"))).Debug("Rejected search hash")
		respondError(w, http.StatusBadRequest, "invalid hash")
		return
	}

	distance := constants.DefaultSearchDistance
	if s := q.Get("distance"); s != "" {
		distance, err = strconv.Atoi(s)
		if err != nil || distance < 0 {
			respondError(w, http.StatusBadRequest, "invalid distance")
			return
		}
	}
	distance = min(distance, h.data.HashSize*h.data.HashSize)

	found := h.data.Search(target, distance)
	matches := make([]SearchMatch, 0, len(found))
	for _, m := range found {
		matches = append(matches, SearchMatch{
			XID:       m.Item.XID,
			GroupID:   m.Item.GroupID,
			ScanIndex: m.Item.ScanIndex,
			Hash:      m.Item.Hash.Hex(h.data.HashSize),
			Distance:  m.Distance,
		})
	}
	slices.SortFunc(matches, func(a, b SearchMatch) int {
		return cmp.Or(cmp.Compare(a.Distance, b.Distance), cmp.Compare(a.XID, b.XID))
	})
	if len(matches) > constants.MaxSearchResults {
		matches = matches[:constants.MaxSearchResults]
	}

	respondJSON(w, http.StatusOK, SearchResponse{
		Hash:     target.Hex(h.data.HashSize),
		Distance: distance,
		Count:    len(matches),
		Matches:  matches,
	})
}

type StatsResponse struct {
	similarity.Header
	Photos   int `json:"photos"`
	Pairs    int `json:"pairs"`
	Clusters int `json:"clusters"`
	Groups   int `json:"groups"`
}

// Stats summarizes the loaded run.
func (h *SimilarityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatsResponse{
		Header:   h.data.Header,
		Photos:   h.data.photos,
		Pairs:    len(h.data.pairs),
		Clusters: h.data.clusterCount,
		Groups:   len(h.data.clustersByGroup),
	})
}
