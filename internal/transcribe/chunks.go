package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mgpai22/burnsub/internal/media"
	"github.com/mgpai22/burnsub/internal/subtitle"
)

// chunkResult holds the result of transcribing a single chunk
type chunkResult struct {
	Index    int
	Segments []subtitle.Segment
	Error    error
}

// transcribes a single chunk and shifts its segments by the chunk start
func transcribeChunk(
	ctx context.Context,
	t Transcriber,
	chunk media.ChunkInfo,
) ([]subtitle.Segment, error) {
	result, err := t.Transcribe(ctx, chunk.Path)
	if err != nil {
		return nil, err
	}

	offset := chunk.StartTime.Seconds()
	segments := make([]subtitle.Segment, len(result.Segments))
	for i, seg := range result.Segments {
		segments[i] = subtitle.Segment{
			Start: seg.Start + offset,
			End:   seg.End + offset,
			Text:  seg.Text,
		}
	}
	return segments, nil
}

// TranscribeChunks runs t over each chunk with up to concurrency requests in
// flight and merges the segments in chunk order. The first failure cancels
// the remaining work.
func TranscribeChunks(
	ctx context.Context,
	t Transcriber,
	chunks []media.ChunkInfo,
	concurrency int,
) (*Result, error) {
	if len(chunks) == 0 {
		return &Result{Segments: []subtitle.Segment{}}, nil
	}

	if concurrency <= 0 {
		concurrency = 3
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workChan := make(chan media.ChunkInfo)
	resultChan := make(chan chunkResult, len(chunks))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case chunk, ok := <-workChan:
					if !ok {
						return
					}
					if ctx.Err() != nil {
						return
					}

					segments, err := transcribeChunk(ctx, t, chunk)
					if err != nil {
						cancel()
					}
					resultChan <- chunkResult{
						Index:    chunk.Index,
						Segments: segments,
						Error:    err,
					}
				}
			}
		}()
	}

	go func() {
		defer close(workChan)
		for _, chunk := range chunks {
			select {
			case <-ctx.Done():
				return
			case workChan <- chunk:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]chunkResult, 0, len(chunks))
	var firstErr error
	for result := range resultChan {
		// a sibling's cancellation is not the cause
		if result.Error != nil && (firstErr == nil || errors.Is(firstErr, context.Canceled) && !errors.Is(result.Error, context.Canceled)) {
			firstErr = fmt.Errorf("failed to transcribe chunk %d: %w", result.Index, result.Error)
		}
		results = append(results, result)
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if len(results) != len(chunks) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("transcribed %d of %d chunks", len(results), len(chunks))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Index < results[j].Index
	})

	segments := []subtitle.Segment{}
	for _, result := range results {
		segments = append(segments, result.Segments...)
	}

	last := chunks[len(chunks)-1]
	return &Result{
		Segments: segments,
		Duration: last.EndTime,
	}, nil
}
