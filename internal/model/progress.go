package model

import "math"

// CourseProgress is the per-lesson completion structure returned by the
// course progress API
type CourseProgress struct {
	CourseUUID string            `json:"CourseUUID"`
	Chapters   []ChapterProgress `json:"Chapters"`
}

// ChapterProgress is one chapter of a CourseProgress
type ChapterProgress struct {
	UUID    string           `json:"UUID"`
	Title   string           `json:"Title"`
	Lessons []LessonProgress `json:"Lessons"`
}

// LessonProgress is the completion flag for a single lesson
type LessonProgress struct {
	UUID       string `json:"UUID"`
	Title      string `json:"Title"`
	IsComplete bool   `json:"IsComplete"`
}

// Snapshot is the done/total summary stored as a member's progress payload
type Snapshot struct {
	CourseUUID string            `json:"courseUUID"`
	Total      int               `json:"total"`
	Done       int               `json:"done"`
	Chapters   []ChapterSnapshot `json:"chapters"`
}

// ChapterSnapshot is the per-chapter breakdown of a Snapshot
type ChapterSnapshot struct {
	Title string `json:"title"`
	Total int    `json:"total"`
	Done  int    `json:"done"`
}

// Score returns the snapshot's percentage score
func (s Snapshot) Score() int {
	return ScorePercent(s.Done, s.Total)
}

// Clone returns a copy that shares no chapter slice with s
func (s Snapshot) Clone() Snapshot {
	c := s
	if s.Chapters != nil {
		c.Chapters = make([]ChapterSnapshot, len(s.Chapters))
		copy(c.Chapters, s.Chapters)
	}
	return c
}

// ScorePercent is round(done/total*100), defined as 0 when total is 0
func ScorePercent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}
