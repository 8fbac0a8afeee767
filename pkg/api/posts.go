package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/cuemby/hazardfeed/pkg/ingest"
	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/types"
)

// createPostRequest is the JSON form of a submission. Files carry either
// base64 data or a pre-hosted url.
type createPostRequest struct {
	Content     string             `json:"content"`
	Location    string             `json:"location,omitempty"`
	Coordinates *types.Coordinates `json:"coordinates,omitempty"`
	Files       []fileUpload       `json:"files,omitempty"`
}

type fileUpload struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// createPost handles POST /api/posts with a JSON or multipart body
func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	sub, err := s.decodeSubmission(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, err := bearerToken(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sub.Token = token

	post, err := s.ingest.Submit(r.Context(), sub)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/posts/"+post.ID)
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) decodeSubmission(r *http.Request) (ingest.Submission, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		return decodeMultipart(r)
	case "application/json", "":
		var req createPostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return ingest.Submission{}, bodyError(err)
		}
		sub := ingest.Submission{
			Content:     req.Content,
			Location:    req.Location,
			Coordinates: req.Coordinates,
		}
		for _, f := range req.Files {
			sub.Attachments = append(sub.Attachments, ingest.Attachment{
				Name:        f.Name,
				ContentType: f.Type,
				Data:        f.Data,
				URL:         f.URL,
			})
		}
		return sub, nil
	default:
		return ingest.Submission{}, fmt.Errorf("%w: unsupported content type %q", types.ErrValidation, mediaType)
	}
}

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to temp files
const multipartMemory = 8 << 20

func decodeMultipart(r *http.Request) (ingest.Submission, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return ingest.Submission{}, bodyError(err)
	}
	defer r.MultipartForm.RemoveAll()

	sub := ingest.Submission{
		Content:  r.FormValue("content"),
		Location: r.FormValue("location"),
	}

	if lat, lng := r.FormValue("lat"), r.FormValue("lng"); lat != "" || lng != "" {
		coords, err := parseCoordinates(lat, lng, r.FormValue("accuracy"))
		if err != nil {
			return ingest.Submission{}, err
		}
		sub.Coordinates = coords
	}

	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return ingest.Submission{}, fmt.Errorf("%w: unreadable file %s", types.ErrValidation, fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return ingest.Submission{}, fmt.Errorf("%w: unreadable file %s", types.ErrValidation, fh.Filename)
		}
		sub.Attachments = append(sub.Attachments, ingest.Attachment{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	for i, url := range r.MultipartForm.Value["file_url"] {
		sub.Attachments = append(sub.Attachments, ingest.Attachment{
			Name:        fmt.Sprintf("link-%d", i+1),
			ContentType: mimeAt(r.MultipartForm.Value["file_type"], i),
			URL:         url,
		})
	}

	return sub, nil
}

func mimeAt(declared []string, i int) string {
	if i < len(declared) {
		return declared[i]
	}
	return ""
}

func parseCoordinates(lat, lng, accuracy string) (*types.Coordinates, error) {
	var c types.Coordinates
	var err error
	if c.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return nil, fmt.Errorf("%w: invalid latitude", types.ErrValidation)
	}
	if c.Lng, err = strconv.ParseFloat(strings.TrimSpace(lng), 64); err != nil {
		return nil, fmt.Errorf("%w: invalid longitude", types.ErrValidation)
	}
	if accuracy != "" {
		if c.AccuracyM, err = strconv.ParseFloat(strings.TrimSpace(accuracy), 64); err != nil {
			return nil, fmt.Errorf("%w: invalid accuracy", types.ErrValidation)
		}
	}
	return &c, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: request body exceeds %d bytes", types.ErrValidation, tooLarge.Limit)
	}
	return fmt.Errorf("%w: malformed request body", types.ErrValidation)
}

// listPosts handles GET /api/posts, newest first
func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.ListPosts()
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", types.ErrStorage, err))
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// getPost handles GET /api/posts/{id}
func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.store.GetPost(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// deletePost handles DELETE /api/posts/{id}. Files uploaded with the post
// are removed after the record is gone.
func (s *Server) deletePost(w http.ResponseWriter, r *http.Request, claims *types.Claims) {
	id := r.PathValue("id")

	post, err := s.store.GetPost(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.DeletePost(id); err != nil {
		writeError(w, r, err)
		return
	}

	logger := log.FromContext(r.Context())
	if s.content != nil {
		for _, f := range post.Files {
			if err := s.content.Delete(r.Context(), f.URL); err != nil {
				logger.Warn().Err(err).Str("url", f.URL).Msg("failed to remove post file")
			}
		}
	}

	logger.Info().
		Str("post_id", id).
		Str("deleted_by", claims.UserID).
		Msg("post deleted")
	w.WriteHeader(http.StatusNoContent)
}
