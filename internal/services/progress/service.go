// Package progress turns a lesson's course completion into a progress
// snapshot and score.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mcoot/coursebattle/internal/model"
)

// maxErrorBody caps how much of a failed response is kept on StatusError
const maxErrorBody = 512

// StatusError is returned when the progress API answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("progress API returned %d", e.StatusCode)
}

// Config holds progress API settings
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the public progress API configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.boot.dev",
		Timeout: 10 * time.Second,
	}
}

// Result is a built snapshot together with its score
type Result struct {
	Snapshot model.Snapshot
	Score    int
}

// Service fetches course progress and folds it into snapshots
type Service struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// New creates a progress Service. A nil TokenSource sends unauthenticated
// requests.
func New(cfg Config, tokens TokenSource, logger *slog.Logger) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Service{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		logger:     logger.With(slog.String("component", "progress")),
	}
}

// Fetch retrieves the course progress structure for the course containing lessonID
func (s *Service) Fetch(ctx context.Context, lessonID string) (*model.CourseProgress, error) {
	if strings.TrimSpace(lessonID) == "" {
		return nil, model.ErrLessonRequired
	}

	endpoint := s.baseURL + "/v1/course_progress_by_lesson/" + url.PathEscape(lessonID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	token, err := s.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("read progress token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch progress: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var progress model.CourseProgress
	if err := json.NewDecoder(resp.Body).Decode(&progress); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &progress, nil
}

// Build fetches progress for lessonID and returns its snapshot and score
func (s *Service) Build(ctx context.Context, lessonID string) (*Result, error) {
	progress, err := s.Fetch(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	snapshot := ToSnapshot(progress)
	s.logger.Debug("progress snapshot built",
		slog.String("lesson_id", lessonID),
		slog.String("course_uuid", snapshot.CourseUUID),
		slog.Int("done", snapshot.Done),
		slog.Int("total", snapshot.Total))

	return &Result{Snapshot: snapshot, Score: snapshot.Score()}, nil
}

// ToSnapshot counts total and completed lessons overall and per chapter
func ToSnapshot(progress *model.CourseProgress) model.Snapshot {
	snapshot := model.Snapshot{
		CourseUUID: progress.CourseUUID,
		Chapters:   make([]model.ChapterSnapshot, 0, len(progress.Chapters)),
	}

	for _, chapter := range progress.Chapters {
		done := 0
		for _, lesson := range chapter.Lessons {
			if lesson.IsComplete {
				done++
			}
		}
		snapshot.Chapters = append(snapshot.Chapters, model.ChapterSnapshot{
			Title: chapter.Title,
			Total: len(chapter.Lessons),
			Done:  done,
		})
		snapshot.Total += len(chapter.Lessons)
		snapshot.Done += done
	}
	return snapshot
}
