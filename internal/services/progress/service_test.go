package progress

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/coursebattle/internal/model"
	"github.com/mcoot/coursebattle/internal/testutil"
)

const courseJSON = `{
  "CourseUUID": "course-1",
  "Chapters": [
    {"UUID": "ch1", "Title": "Basics", "Lessons": [
      {"UUID": "l1", "Title": "One", "IsComplete": true},
      {"UUID": "l2", "Title": "Two", "IsComplete": true},
      {"UUID": "l3", "Title": "Three", "IsComplete": false}
    ]},
    {"UUID": "ch2", "Title": "Loops", "Lessons": [
      {"UUID": "l4", "Title": "Four", "IsComplete": false}
    ]}
  ]
}`

func TestToSnapshotCountsLessons(t *testing.T) {
	progress := &model.CourseProgress{
		CourseUUID: "course-1",
		Chapters: []model.ChapterProgress{
			{Title: "Basics", Lessons: []model.LessonProgress{{IsComplete: true}, {IsComplete: true}, {}}},
			{Title: "Loops", Lessons: []model.LessonProgress{{}}},
			{Title: "Empty"},
		},
	}

	snapshot := ToSnapshot(progress)
	assert.Equal(t, "course-1", snapshot.CourseUUID)
	assert.Equal(t, 4, snapshot.Total)
	assert.Equal(t, 2, snapshot.Done)
	assert.Equal(t, []model.ChapterSnapshot{
		{Title: "Basics", Total: 3, Done: 2},
		{Title: "Loops", Total: 1, Done: 0},
		{Title: "Empty", Total: 0, Done: 0},
	}, snapshot.Chapters)
	assert.Equal(t, 50, snapshot.Score())
}

func TestToSnapshotEmptyCourseScoresZero(t *testing.T) {
	snapshot := ToSnapshot(&model.CourseProgress{CourseUUID: "c"})
	assert.Equal(t, 0, snapshot.Total)
	assert.Equal(t, 0, snapshot.Score())
	assert.NotNil(t, snapshot.Chapters)
}

func TestBuildFetchesWithBearerToken(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(courseJSON))
	}))
	defer server.Close()

	svc := New(Config{BaseURL: server.URL}, StaticToken("tok"), testutil.NopLogger())

	result, err := svc.Build(context.Background(), "lesson-42")
	require.NoError(t, err)

	assert.Equal(t, "/v1/course_progress_by_lesson/lesson-42", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, 4, result.Snapshot.Total)
	assert.Equal(t, 2, result.Snapshot.Done)
	assert.Equal(t, 50, result.Score)
}

func TestFetchWithoutTokenOmitsAuthorization(t *testing.T) {
	sawAuth := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte(`{"CourseUUID":"c","Chapters":[]}`))
	}))
	defer server.Close()

	svc := New(Config{BaseURL: server.URL}, nil, testutil.NopLogger())

	_, err := svc.Fetch(context.Background(), "lesson")
	require.NoError(t, err)
	assert.False(t, sawAuth)
}

func TestFetchNon2xxReturnsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	svc := New(Config{BaseURL: server.URL}, nil, testutil.NopLogger())

	_, err := svc.Build(context.Background(), "lesson")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "nope")
}

func TestFetchTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	svc := New(Config{BaseURL: url}, nil, testutil.NopLogger())

	_, err := svc.Fetch(context.Background(), "lesson")
	assert.Error(t, err)
}

func TestFetchRequiresLesson(t *testing.T) {
	svc := New(DefaultConfig(), nil, testutil.NopLogger())
	_, err := svc.Fetch(context.Background(), " ")
	assert.ErrorIs(t, err, model.ErrLessonRequired)
}
