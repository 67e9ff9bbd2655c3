package services

import (
	"context"
	"io"
)

// ObjectStore persists rendered audio and returns a URL the client can play.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

func CourseAudioKey(courseID, jobID, speedKey string) string {
	return "courses/" + courseID + "/audio/" + jobID + "/" + speedKey + ".wav"
}

func LineRenderingKey(courseID, renderingID string) string {
	return "courses/" + courseID + "/lines/" + renderingID + ".wav"
}
