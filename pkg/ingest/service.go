// Package ingest accepts post submissions: it validates them, stores any
// attachments, persists the post and announces it on the event channel.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/hazardfeed/pkg/auth"
	"github.com/cuemby/hazardfeed/pkg/content"
	"github.com/cuemby/hazardfeed/pkg/events"
	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/metrics"
	"github.com/cuemby/hazardfeed/pkg/types"
)

// DefaultUploadTimeout bounds the attachment upload phase of a submission
const DefaultUploadTimeout = 30 * time.Second

// Attachment is one submitted file. Exactly one of Data or URL is expected;
// Data wins when both are set.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
	URL         string
}

// Submission is the raw input of a new post
type Submission struct {
	Content     string
	Location    string
	Coordinates *types.Coordinates
	Attachments []Attachment
	// Token is the optional bearer credential of the author
	Token string
}

// PostWriter is the slice of the post store the service writes to
type PostWriter interface {
	CreatePost(post *types.Post) error
}

// Service handles post submissions
type Service struct {
	posts         PostWriter
	content       content.Store
	verifier      auth.Verifier
	publisher     events.Publisher
	clock         clockwork.Clock
	uploadTimeout time.Duration
	logger        zerolog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock sets the clock used for post timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithUploadTimeout overrides DefaultUploadTimeout
func WithUploadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.uploadTimeout = d
		}
	}
}

// NewService creates an ingestion service
func NewService(posts PostWriter, store content.Store, verifier auth.Verifier, publisher events.Publisher, opts ...Option) *Service {
	s := &Service{
		posts:         posts,
		content:       store,
		verifier:      verifier,
		publisher:     publisher,
		clock:         clockwork.NewRealClock(),
		uploadTimeout: DefaultUploadTimeout,
		logger:        log.WithComponent("ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates and stores a post, then publishes a new-post event with
// the stored record. The event is published only after the post write has
// committed, so subscribers can always re-fetch what they are told about.
func (s *Service) Submit(ctx context.Context, sub Submission) (*types.Post, error) {
	post, err := s.submit(ctx, sub)
	if err != nil {
		metrics.PostsRejected.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}
	metrics.PostsCreated.Inc()
	return post, nil
}

func (s *Service) submit(ctx context.Context, sub Submission) (*types.Post, error) {
	if err := validate(sub); err != nil {
		return nil, err
	}

	var userID string
	if token := strings.TrimSpace(sub.Token); token != "" {
		if s.verifier == nil {
			return nil, fmt.Errorf("%w: token verification unavailable", types.ErrAuth)
		}
		claims, err := s.verifier.Verify(token)
		if err != nil {
			if errors.Is(err, types.ErrAuth) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", types.ErrAuth, err)
		}
		userID = claims.UserID
	}

	files, uploaded, err := s.upload(ctx, sub.Attachments)
	if err != nil {
		s.cleanup(uploaded)
		return nil, err
	}

	post := &types.Post{
		ID:          uuid.New().String(),
		Content:     sub.Content,
		Files:       files,
		Location:    strings.TrimSpace(sub.Location),
		Coordinates: sub.Coordinates,
		UserID:      userID,
		CreatedAt:   s.clock.Now().UTC(),
	}

	if err := s.posts.CreatePost(post); err != nil {
		s.cleanup(uploaded)
		s.logger.Error().Err(err).Msg("failed to store post")
		return nil, fmt.Errorf("%w: failed to store post: %v", types.ErrStorage, err)
	}

	logger := log.WithPostID(post.ID)
	logger.Info().
		Int("files", len(post.Files)).
		Bool("anonymous", userID == "").
		Msg("post created")

	ev, err := events.NewPostEvent(post)
	if err != nil {
		// The post is durable; a missed broadcast is repaired by the next
		// snapshot read.
		logger.Error().Err(err).Msg("failed to build new-post event")
		return post, nil
	}
	s.publisher.Publish(ev)

	return post, nil
}

func validate(sub Submission) error {
	if strings.TrimSpace(sub.Content) == "" && len(sub.Attachments) == 0 {
		return fmt.Errorf("%w: content or at least one file is required", types.ErrValidation)
	}
	if sub.Coordinates != nil && !sub.Coordinates.Valid() {
		return fmt.Errorf("%w: coordinates out of range", types.ErrValidation)
	}
	for i, a := range sub.Attachments {
		if len(a.Data) == 0 && strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("%w: file %d has neither data nor url", types.ErrValidation, i+1)
		}
	}
	return nil
}

// upload stores raw attachments in order. It returns the URLs written so
// far even on failure so the caller can remove them.
func (s *Service) upload(ctx context.Context, attachments []Attachment) ([]types.FileRef, []string, error) {
	files := make([]types.FileRef, 0, len(attachments))
	var uploaded []string

	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	for i, a := range attachments {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			name = fmt.Sprintf("file-%d", i+1)
		}
		ref := types.FileRef{Name: name, Kind: types.MediaKindFromMIME(a.ContentType)}

		if len(a.Data) == 0 {
			ref.URL = strings.TrimSpace(a.URL)
			files = append(files, ref)
			continue
		}

		url, err := s.content.Upload(ctx, a.Data, name)
		if err != nil {
			s.logger.Error().Err(err).Str("file", name).Msg("attachment upload failed")
			return nil, uploaded, fmt.Errorf("%w: failed to upload %s: %v", types.ErrStorage, name, err)
		}
		uploaded = append(uploaded, url)
		ref.URL = url
		files = append(files, ref)
		metrics.AttachmentsUploaded.WithLabelValues(string(ref.Kind)).Inc()
	}

	return files, uploaded, nil
}

func (s *Service) cleanup(urls []string) {
	if len(urls) == 0 {
		return
	}
	// Cleanup must run even when the request context is already done.
	ctx, cancel := context.WithTimeout(context.Background(), s.uploadTimeout)
	defer cancel()

	for _, url := range urls {
		if err := s.content.Delete(ctx, url); err != nil {
			s.logger.Warn().Err(err).Str("url", url).Msg("failed to remove orphaned upload")
		}
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, types.ErrValidation):
		return "validation"
	case errors.Is(err, types.ErrAuth):
		return "auth"
	case errors.Is(err, types.ErrStorage):
		return "storage"
	default:
		return "other"
	}
}
