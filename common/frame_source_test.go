package common

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspectkit/frameregistry/log"
)

// testFrameSource is a minimal in-memory frame source for wiring tests.
type testFrameSource struct {
	BaseEventEmitter
	tid target.ID
}

func newTestFrameSource(tid target.ID) *testFrameSource {
	return &testFrameSource{BaseEventEmitter: NewBaseEventEmitter(), tid: tid}
}

func (s *testFrameSource) TargetID() target.ID { return s.tid }

func TestFrameRegistryAttachSource(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	events := recordEvents(r, EventFrameAddedToTarget, EventFrameRemoved, EventFrameNavigated)
	logger := log.NewNullLogger()

	src := newTestFrameSource(targetMain)
	r.AttachSource(src)

	frame := NewFrame("f1", "", targetMain, logger)
	src.Emit(EventSourceFrameAdded, frame)

	got, ok := r.GetFrame("f1")
	require.True(t, ok)
	assert.Same(t, frame, got)

	src.Emit(EventSourceFrameNavigated, frame)
	src.Emit(EventSourceFrameDetached, &FrameDetachedEvent{
		Frame:  frame,
		Reason: cdppage.FrameDetachedReasonRemove,
	})

	_, ok = r.GetFrame("f1")
	assert.False(t, ok)

	var types []string
	for _, ev := range events() {
		types = append(types, ev.Type())
	}
	assert.Equal(t, []string{
		EventFrameAddedToTarget,
		EventFrameNavigated,
		EventFrameRemoved,
	}, types)
}

func TestFrameRegistryAttachSourceSwapReason(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	logger := log.NewNullLogger()

	srcA := newTestFrameSource(targetMain)
	srcB := newTestFrameSource(targetOther)
	r.AttachSource(srcA)
	r.AttachSource(srcB)

	frameA := NewFrame("f1", "parent", targetMain, logger)
	frameB := NewFrame("f1", "parent", targetOther, logger)

	srcA.Emit(EventSourceFrameAdded, frameA)
	srcB.Emit(EventSourceFrameAdded, frameB)
	srcA.Emit(EventSourceFrameDetached, &FrameDetachedEvent{
		Frame:  frameA,
		Reason: cdppage.FrameDetachedReasonSwap,
	})

	got, ok := r.GetFrame("f1")
	require.True(t, ok)
	assert.Same(t, frameB, got)
}

func TestFrameRegistryDetachSource(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	removed := recordEvents(r, EventFrameRemoved)
	logger := log.NewNullLogger()

	src := newTestFrameSource(targetMain)
	r.AttachSource(src)
	src.Emit(EventSourceFrameAdded, NewFrame("f1", "", targetMain, logger))

	r.DetachSource(src)

	require.Len(t, removed(), 1)
	assert.Equal(t, cdp.FrameID("f1"), removed()[0].Data().(cdp.FrameID))

	// A detached source no longer reaches the registry.
	src.Emit(EventSourceFrameAdded, NewFrame("f2", "", targetMain, logger))
	_, ok := r.GetFrame("f2")
	assert.False(t, ok)
}
