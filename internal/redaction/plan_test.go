package redaction

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JarudeC/privacylens/internal/domain/entity"
	"github.com/JarudeC/privacylens/internal/domain/errs"
)

func testJob(intervalMs, durationMs int64, catalog ...entity.PIIFrame) *entity.VideoJob {
	job := entity.NewVideoJob("src.mp4", 1024)
	job.SampleIntervalMs = intervalMs
	job.DurationMs = durationMs
	job.MarkAnalyzed(catalog, len(catalog), len(catalog), 0)
	return job
}

func catalogFrame(job string, index int, tsMs int64, dets ...entity.Detection) entity.PIIFrame {
	return entity.PIIFrame{
		ID:          fmt.Sprintf("%s_frame_%d", job, index),
		TimestampMs: tsMs,
		Detections:  dets,
	}
}

func plateAt(box entity.BoundingBox) entity.Detection {
	return entity.Detection{Type: entity.DetectionCarPlate, Confidence: 0.9, Box: box, Severity: entity.SeverityHigh}
}

func TestBuildWindowsAroundApprovedFrames(t *testing.T) {
	box := entity.BoundingBox{X: 0.4, Y: 0.4, W: 0.1, H: 0.1}
	job := testJob(1000, 10000, catalogFrame("v", 4, 4000, plateAt(box)))

	plan, err := NewPlanner(0.5).Build(job, []string{job.Catalog[0].ID})
	require.NoError(t, err)
	require.Len(t, plan.Windows, 1)

	w := plan.Windows[0]
	assert.Equal(t, int64(3500), w.StartMs)
	assert.Equal(t, int64(4500), w.EndMs)
	require.Len(t, w.Boxes, 1)
	assert.Equal(t, box, w.Boxes[0])

	// Half-open interval: the end timestamp is not covered.
	assert.Len(t, plan.BoxesAt(3500), 1)
	assert.Len(t, plan.BoxesAt(4499), 1)
	assert.Empty(t, plan.BoxesAt(4500))
	assert.Empty(t, plan.BoxesAt(3499))
}

func TestBuildClampsWindowsToVideoBounds(t *testing.T) {
	box := entity.BoundingBox{X: 0.1, Y: 0.1, W: 0.2, H: 0.2}
	job := testJob(1000, 5000,
		catalogFrame("v", 0, 0, plateAt(box)),
		catalogFrame("v", 5, 4800, plateAt(entity.BoundingBox{X: 0.7, Y: 0.7, W: 0.1, H: 0.1})),
	)

	plan, err := NewPlanner(0.5).Build(job, []string{job.Catalog[0].ID, job.Catalog[1].ID})
	require.NoError(t, err)
	require.Len(t, plan.Windows, 2)

	assert.Equal(t, int64(0), plan.Windows[0].StartMs)
	assert.Equal(t, int64(5000), plan.Windows[1].EndMs)
}

func TestBuildMergesAdjacentSameObjectFrames(t *testing.T) {
	boxA := entity.BoundingBox{X: 0.40, Y: 0.40, W: 0.10, H: 0.10}
	boxB := entity.BoundingBox{X: 0.41, Y: 0.40, W: 0.10, H: 0.10}
	job := testJob(1000, 10000,
		catalogFrame("v", 4, 4000, plateAt(boxA)),
		catalogFrame("v", 5, 5000, plateAt(boxB)),
	)

	plan, err := NewPlanner(0.5).Build(job, []string{job.Catalog[0].ID, job.Catalog[1].ID})
	require.NoError(t, err)
	require.Len(t, plan.Windows, 1)

	w := plan.Windows[0]
	assert.Equal(t, int64(3500), w.StartMs)
	assert.Equal(t, int64(5500), w.EndMs)

	// The merged window blurs the union of both boxes.
	require.Len(t, w.Boxes, 1)
	assert.InDelta(t, 0.40, w.Boxes[0].X, 1e-9)
	assert.InDelta(t, 0.11, w.Boxes[0].W, 1e-9)
}

func TestBuildKeepsDistantSameTypeSeparate(t *testing.T) {
	job := testJob(1000, 20000,
		catalogFrame("v", 2, 2000, plateAt(entity.BoundingBox{X: 0.1, Y: 0.1, W: 0.1, H: 0.1})),
		catalogFrame("v", 9, 9000, plateAt(entity.BoundingBox{X: 0.1, Y: 0.1, W: 0.1, H: 0.1})),
	)

	// Same box, same type, but the windows do not touch.
	plan, err := NewPlanner(0.5).Build(job, []string{job.Catalog[0].ID, job.Catalog[1].ID})
	require.NoError(t, err)
	assert.Len(t, plan.Windows, 2)
}

func TestBuildRejectsUnknownFrameID(t *testing.T) {
	job := testJob(1000, 10000, catalogFrame("v", 4, 4000, plateAt(entity.BoundingBox{X: 0.1, Y: 0.1, W: 0.1, H: 0.1})))

	_, err := NewPlanner(0.5).Build(job, []string{job.Catalog[0].ID, "other_frame_9"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeUnknownFrameReference))
}

func TestBuildEmptyApprovedSetYieldsEmptyPlan(t *testing.T) {
	job := testJob(1000, 10000, catalogFrame("v", 4, 4000, plateAt(entity.BoundingBox{X: 0.1, Y: 0.1, W: 0.1, H: 0.1})))

	plan, err := NewPlanner(0.5).Build(job, nil)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
}

func TestBuildDeduplicatesApprovedIDs(t *testing.T) {
	id := "v_frame_4"
	job := testJob(1000, 10000, catalogFrame("v", 4, 4000, plateAt(entity.BoundingBox{X: 0.1, Y: 0.1, W: 0.1, H: 0.1})))

	plan, err := NewPlanner(0.5).Build(job, []string{id, id, id})
	require.NoError(t, err)
	assert.Len(t, plan.Windows, 1)
}

func TestRequestHashOrderAndDuplicateInsensitive(t *testing.T) {
	a := RequestHash([]string{"v_frame_1", "v_frame_2"})
	b := RequestHash([]string{"v_frame_2", "v_frame_1", "v_frame_2"})
	c := RequestHash([]string{"v_frame_1"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
