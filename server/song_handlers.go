package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"songcatalog/core/catalog"
	"songcatalog/core/library"
	"songcatalog/model"

	"github.com/gorilla/mux"
)

const defaultSearchLimit = 20

// publicSong 公共接口返回的歌曲，不包含封禁和审计信息
type publicSong struct {
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	Artists         []model.Artist        `json:"artists"`
	AlbumID         string                `json:"albumId,omitempty"`
	Duration        int                   `json:"duration"`
	HasVideo        bool                  `json:"hasVideo"`
	ReleaseDate     *time.Time            `json:"releaseDate,omitempty"`
	EffectiveStatus model.EffectiveStatus `json:"effectiveStatus"`
}

func toPublic(song *model.Song) publicSong {
	artists := []model.Artist(song.Artists)
	if artists == nil {
		artists = []model.Artist{}
	}
	return publicSong{
		ID:              song.ID,
		Title:           song.Title,
		Artists:         artists,
		AlbumID:         song.AlbumID,
		Duration:        song.Duration,
		HasVideo:        song.HasVideo,
		ReleaseDate:     song.ReleaseDate,
		EffectiveStatus: catalog.EffectiveStatusOf(song),
	}
}

func toPublicList(songs []*model.Song) []publicSong {
	out := make([]publicSong, 0, len(songs))
	for _, s := range songs {
		out = append(out, toPublic(s))
	}
	return out
}

// SearchSongsHandler GET /api/songs/search?q=&page=&limit=&publishedOnly=
func (h *APIHandler) SearchSongsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	publishedOnly := query.Get("publishedOnly") != "false"
	res, err := h.library.Search(r.Context(), query.Get("q"), queryInt(r, "page", 1), queryInt(r, "limit", defaultSearchLimit), publishedOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": toPublicList(res.Items),
		"total": res.Total,
		"page":  res.Page,
		"limit": res.Limit,
	})
}

// RandomSongsHandler GET /api/songs/random?limit=
func (h *APIHandler) RandomSongsHandler(w http.ResponseWriter, r *http.Request) {
	songs, err := h.library.Random(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": toPublicList(songs)})
}

// GetSongHandler GET /api/songs/{id}
func (h *APIHandler) GetSongHandler(w http.ResponseWriter, r *http.Request) {
	song, err := h.library.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublic(song))
}

// UploadSongHandler POST /api/songs/upload (multipart: audio, title, artists, albumId, releaseDate)
func (h *APIHandler) UploadSongHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB max memory
		writeError(w, r, fmt.Errorf("%w: could not parse multipart form: %v", catalog.ErrInvalidArgument, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: audio file is required", catalog.ErrInvalidArgument))
		return
	}
	defer file.Close()

	artists, err := parseArtists(r.FormValue("artists"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var releaseDate *time.Time
	if raw := r.FormValue("releaseDate"); raw != "" {
		t, ok := catalog.ParseDate(raw)
		if !ok {
			writeError(w, r, fmt.Errorf("%w: invalid releaseDate %q", catalog.ErrInvalidArgument, raw))
			return
		}
		releaseDate = &t
	}

	song, err := h.library.Upload(r.Context(), library.UploadRequest{
		Title:       r.FormValue("title"),
		Artists:     artists,
		AlbumID:     r.FormValue("albumId"),
		ReleaseDate: releaseDate,
		File:        file,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, song)
}

// AttachVideoHandler POST /api/songs/{id}/video (multipart: video)
func (h *APIHandler) AttachVideoHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, r, fmt.Errorf("%w: could not parse multipart form: %v", catalog.ErrInvalidArgument, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: video file is required", catalog.ErrInvalidArgument))
		return
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "video/") {
		writeError(w, r, fmt.Errorf("%w: only video files are accepted, got %q", catalog.ErrInvalidArgument, ct))
		return
	}

	song, err := h.library.AttachVideo(r.Context(), mux.Vars(r)["id"], file, header.Filename)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// UpdateSongHandler PATCH /api/songs/{id}
func (h *APIHandler) UpdateSongHandler(w http.ResponseWriter, r *http.Request) {
	var patch library.MetadataPatch
	if err := decodeJSON(r, &patch, false); err != nil {
		writeError(w, r, err)
		return
	}
	song, err := h.library.UpdateMetadata(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// parseArtists 接受 JSON 数组或逗号分隔的艺人名
func parseArtists(raw string) ([]model.Artist, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var artists []model.Artist
		if err := json.Unmarshal([]byte(raw), &artists); err != nil {
			return nil, fmt.Errorf("%w: invalid artists: %v", catalog.ErrInvalidArgument, err)
		}
		return artists, nil
	}
	var artists []model.Artist
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			artists = append(artists, model.Artist{Name: name})
		}
	}
	if len(artists) == 0 {
		return nil, fmt.Errorf("%w: no artist names given", catalog.ErrInvalidArgument)
	}
	return artists, nil
}
