package gaze

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamSourceReadsFrames(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`{"face_detected":true,"head":{"x":0.4,"y":0.6},"timestamp":"2026-08-29T10:00:00Z"}`,
		``,
		`{"face_detected":false,"head":{"x":0,"y":0}}`,
	}, "\n")

	src := NewStreamSource(strings.NewReader(input))
	ctx := context.Background()

	frame, err := src.Next(ctx)
	require.NoError(t, err)
	assert.True(t, frame.FaceDetected)
	assert.InDelta(t, 0.4, frame.Head.X, 1e-9)
	assert.Equal(t, 2026, frame.Timestamp.Year())

	frame, err = src.Next(ctx)
	require.NoError(t, err)
	assert.False(t, frame.FaceDetected)
	// Frames without a timestamp get stamped on arrival.
	assert.WithinDuration(t, time.Now(), frame.Timestamp, time.Minute)

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrSourceExhausted)
}

func TestStreamSourceSkipsMalformedLines(t *testing.T) {
	t.Parallel()

	input := "not json\n" +
		`{"face_detected":true,"head":{"x":0.5,"y":0.5}}` + "\n" +
		"{truncated\n"

	src := NewStreamSource(strings.NewReader(input))

	frame, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, frame.FaceDetected)
	assert.Equal(t, 1, src.Skipped())

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, ErrSourceExhausted)
	assert.Equal(t, 2, src.Skipped())
}

func TestStreamSourceContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewStreamSource(strings.NewReader(`{"face_detected":true,"head":{"x":0.5,"y":0.5}}`))
	defer src.Close()
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamSourceCancelUnblocksStalledRead(t *testing.T) {
	t.Parallel()

	// A pipe with no writer activity models a silent but still-open
	// extractor process.
	pr, pw := io.Pipe()
	defer pw.Close()

	src := NewStreamSource(pr)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := src.Next(ctx)
		result <- err
	}()

	// Next must be parked on the stream, not returning.
	select {
	case err := <-result:
		t.Fatalf("Next returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after cancellation")
	}
}

func TestStreamSourceCloseUnblocksNext(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()

	src := NewStreamSource(pr)
	result := make(chan error, 1)
	go func() {
		_, err := src.Next(context.Background())
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, src.Close())

	select {
	case err := <-result:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}
}
