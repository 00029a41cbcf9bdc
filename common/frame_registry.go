package common

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"

	"github.com/inspectkit/frameregistry/log"
)

// frameRecord tracks one live frame ID together with the number of
// targets currently reporting it. The count is normally 1; it is
// transiently 2 while a frame transfers between targets.
type frameRecord struct {
	frame    *Frame
	refCount int
}

// frameWaiter is a pending GetOrWaitForFrame call. The channel is
// buffered so resolution never blocks the adding goroutine; it is
// closed (without a send) on dispose.
type frameWaiter struct {
	excludeTarget target.ID
	hasExclude    bool
	ch            chan *Frame
}

// FrameRegistry merges the per-target frame event streams of all
// attached frame sources into one canonical view of the currently live
// frames, and republishes their lifecycle events to subscribers.
//
// Subscribers are invoked synchronously, in registration order, from
// within the mutating call that triggered the event. A subscriber must
// not call back into the registry's mutating operations. Events are
// delivered after the triggering mutation is committed; when sources
// mutate concurrently from different goroutines, delivery order across
// those mutations is not guaranteed to match state-change order.
type FrameRegistry struct {
	BaseEventEmitter

	ctx             context.Context
	timeoutSettings *TimeoutSettings

	mu            sync.RWMutex
	frames        map[cdp.FrameID]*frameRecord
	targetFrames  map[target.ID]map[cdp.FrameID]struct{}
	topFrame      *Frame
	pendingTraces map[cdp.FrameID]*cdpruntime.StackTrace
	waiters       map[cdp.FrameID][]*frameWaiter
	sources       map[target.ID]sourceSubscription
	disposed      bool

	logger *log.Logger
}

type sourceSubscription struct {
	source FrameSource
	handle ListenerHandle
}

// NewFrameRegistry creates a new frame registry. Consumers receive it
// by reference; tests construct a fresh instance each.
func NewFrameRegistry(
	ctx context.Context, ts *TimeoutSettings, logger *log.Logger,
) *FrameRegistry {
	return &FrameRegistry{
		BaseEventEmitter: NewBaseEventEmitter(),
		ctx:              ctx,
		timeoutSettings:  ts,
		frames:           make(map[cdp.FrameID]*frameRecord),
		targetFrames:     make(map[target.ID]map[cdp.FrameID]struct{}),
		pendingTraces:    make(map[cdp.FrameID]*cdpruntime.StackTrace),
		waiters:          make(map[cdp.FrameID][]*frameWaiter),
		sources:          make(map[target.ID]sourceSubscription),
		logger:           logger,
	}
}

// AddFrame registers a frame reported by the target it is attributed
// to. If the frame ID is already known the existing record's reference
// count is incremented and the creation stack trace of the previous
// frame object is carried over onto the new one, so diagnostics survive
// a cross-target transfer.
func (r *FrameRegistry) AddFrame(frame *Frame) {
	id, src := frame.ID(), frame.TargetID()
	r.logger.Debugf("FrameRegistry:AddFrame", "fid:%v tid:%v", id, src)

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	if rec, ok := r.frames[id]; ok {
		// Two frame objects share this ID for the duration of the
		// transfer; the newest one wins the record.
		if st := rec.frame.CreationStackTrace(); st != nil {
			frame.SetCreationStackTrace(st)
		}
		rec.frame = frame
		rec.refCount++
	} else {
		if st, ok := r.pendingTraces[id]; ok && st != nil {
			frame.SetCreationStackTrace(st)
			delete(r.pendingTraces, id)
		}
		r.frames[id] = &frameRecord{frame: frame, refCount: 1}
	}
	r.resetTopFrame()
	tf, ok := r.targetFrames[src]
	if !ok {
		tf = make(map[cdp.FrameID]struct{})
		r.targetFrames[src] = tf
	}
	tf[id] = struct{}{}
	resolved := r.takeWaiters(id, src)
	r.mu.Unlock()

	r.Emit(EventFrameAddedToTarget, frame)
	for _, w := range resolved {
		w.ch <- frame
	}
}

// RemoveFrame unregisters a frame reported as detached by the target it
// is attributed to. A detach from a target that never reported the
// frame is a no-op. EventFrameRemoved fires only when no target reports
// the frame ID anymore. With isTransferSwap the departing frame's
// creation stack trace is stashed so a subsequent AddFrame for the same
// ID (on the receiving target) can inherit it.
func (r *FrameRegistry) RemoveFrame(frame *Frame, isTransferSwap bool) {
	id, src := frame.ID(), frame.TargetID()
	r.logger.Debugf("FrameRegistry:RemoveFrame", "fid:%v tid:%v swap:%t", id, src, isTransferSwap)

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	if _, ok := r.targetFrames[src][id]; !ok {
		r.mu.Unlock()
		return
	}
	removed := r.decrementOrRemoveLocked(id)
	if isTransferSwap && removed {
		if st := frame.CreationStackTrace(); st != nil {
			r.pendingTraces[id] = st
		}
	}
	delete(r.targetFrames[src], id)
	r.mu.Unlock()

	if removed {
		r.Emit(EventFrameRemoved, id)
	}
}

// TargetDetached bulk-releases every frame attributed to the given
// target. It covers targets that disconnect without emitting individual
// detach events; nothing is stashed for transfer continuity since the
// target is gone, not transferring.
func (r *FrameRegistry) TargetDetached(targetID target.ID) {
	r.logger.Debugf("FrameRegistry:TargetDetached", "tid:%v", targetID)

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	var removed []cdp.FrameID
	for id := range r.targetFrames[targetID] {
		if r.decrementOrRemoveLocked(id) {
			removed = append(removed, id)
		}
	}
	delete(r.targetFrames, targetID)
	r.mu.Unlock()

	for _, id := range removed {
		r.Emit(EventFrameRemoved, id)
	}
}

// decrementOrRemoveLocked decrements the record's reference count for
// the given frame ID and reports whether the record was removed
// entirely. An unknown ID is a no-op. Callers must hold r.mu.
func (r *FrameRegistry) decrementOrRemoveLocked(id cdp.FrameID) bool {
	rec, ok := r.frames[id]
	if !ok {
		return false
	}
	if rec.refCount > 1 {
		rec.refCount--
		return false
	}
	delete(r.frames, id)
	r.resetTopFrame()
	return true
}

// FrameNavigated republishes a source navigation. If the navigated
// frame is the current top frame, EventTopFrameNavigated fires as well.
func (r *FrameRegistry) FrameNavigated(frame *Frame) {
	r.logger.Debugf("FrameRegistry:FrameNavigated", "fid:%v furl:%s", frame.ID(), frame.URL())

	r.mu.RLock()
	disposed := r.disposed
	isTop := r.topFrame == frame
	r.mu.RUnlock()
	if disposed {
		return
	}

	r.Emit(EventFrameNavigated, frame)
	if isTop {
		r.Emit(EventTopFrameNavigated, frame)
	}
}

// ResourceAdded republishes a source resource. No registry state
// changes.
func (r *FrameRegistry) ResourceAdded(resource *ResourceAddedEvent) {
	r.mu.RLock()
	disposed := r.disposed
	r.mu.RUnlock()
	if disposed {
		return
	}
	r.Emit(EventResourceAdded, resource)
}

// GetFrame returns the frame currently live under the given ID. The
// returned object is only valid until the next add or detach for that
// ID; callers must not cache it across a wait.
func (r *FrameRegistry) GetFrame(id cdp.FrameID) (*Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.frames[id]
	if !ok {
		return nil, false
	}
	return rec.frame, true
}

// Frames returns a snapshot of all live frames, in no particular order.
func (r *FrameRegistry) Frames() []*Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	frames := make([]*Frame, 0, len(r.frames))
	for _, rec := range r.frames {
		frames = append(frames, rec.frame)
	}
	return frames
}

// FramesForTarget returns a snapshot of the frames currently attributed
// to the given target.
func (r *FrameRegistry) FramesForTarget(targetID target.ID) []*Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	frames := make([]*Frame, 0, len(r.targetFrames[targetID]))
	for id := range r.targetFrames[targetID] {
		if rec, ok := r.frames[id]; ok {
			frames = append(frames, rec.frame)
		}
	}
	return frames
}

// TopFrame returns the top frame of the inspected page, or nil if no
// live frame is a top frame.
func (r *FrameRegistry) TopFrame() *Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topFrame
}

// resetTopFrame recomputes the cached top frame from the live frames.
// The upstream contract guarantees at most one top frame across all
// attached targets; the registry does not validate this and keeps the
// first one found. Callers must hold r.mu.
func (r *FrameRegistry) resetTopFrame() {
	r.topFrame = nil
	for _, rec := range r.frames {
		if rec.frame.IsMainFrame() {
			r.topFrame = rec.frame
			return
		}
	}
}

// GetOrWaitForFrame returns the frame under the given ID, waiting for
// it to appear if no target reports it yet. The wait ends when ctx is
// done or, with a non-zero default timeout configured, after that
// timeout.
func (r *FrameRegistry) GetOrWaitForFrame(ctx context.Context, id cdp.FrameID) (*Frame, error) {
	return r.getOrWaitForFrame(ctx, id, "", false)
}

// GetOrWaitForFrameNotInTarget is GetOrWaitForFrame restricted to
// frames not attributed to excludeTarget. It exists for transfer
// windows: the caller already knows the frame on the old target and
// wants the object the new target will report.
func (r *FrameRegistry) GetOrWaitForFrameNotInTarget(
	ctx context.Context, id cdp.FrameID, excludeTarget target.ID,
) (*Frame, error) {
	return r.getOrWaitForFrame(ctx, id, excludeTarget, true)
}

func (r *FrameRegistry) getOrWaitForFrame(
	ctx context.Context, id cdp.FrameID, excludeTarget target.ID, hasExclude bool,
) (*Frame, error) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil, ErrRegistryDisposed
	}
	if rec, ok := r.frames[id]; ok {
		if !hasExclude || rec.frame.TargetID() != excludeTarget {
			frame := rec.frame
			r.mu.Unlock()
			return frame, nil
		}
	}
	w := &frameWaiter{
		excludeTarget: excludeTarget,
		hasExclude:    hasExclude,
		ch:            make(chan *Frame, 1),
	}
	r.waiters[id] = append(r.waiters[id], w)
	r.mu.Unlock()

	r.logger.Debugf("FrameRegistry:getOrWaitForFrame", "fid:%v waiting", id)

	var timeoutCh <-chan time.Time
	if timeout := r.timeoutSettings.timeout(); timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case frame, ok := <-w.ch:
		if !ok {
			return nil, ErrRegistryDisposed
		}
		return frame, nil
	case <-ctx.Done():
		r.removeWaiter(id, w)
		return nil, ctx.Err()
	case <-r.ctx.Done():
		r.removeWaiter(id, w)
		return nil, r.ctx.Err()
	case <-timeoutCh:
		if !r.removeWaiter(id, w) {
			// Resolved while the timer fired.
			if frame, ok := <-w.ch; ok {
				return frame, nil
			}
			return nil, ErrRegistryDisposed
		}
		return nil, ErrTimedOut
	}
}

// takeWaiters removes and returns the waiters for the given frame ID
// that the add from src satisfies. Waiters excluding exactly src stay
// queued. Callers must hold r.mu.
func (r *FrameRegistry) takeWaiters(id cdp.FrameID, src target.ID) []*frameWaiter {
	var resolved, remaining []*frameWaiter
	for _, w := range r.waiters[id] {
		if w.hasExclude && w.excludeTarget == src {
			remaining = append(remaining, w)
			continue
		}
		resolved = append(resolved, w)
	}
	if len(remaining) == 0 {
		delete(r.waiters, id)
	} else {
		r.waiters[id] = remaining
	}
	return resolved
}

// removeWaiter unregisters a waiter and reports whether it was still
// queued. A false return means the waiter was already resolved (its
// channel holds a frame) or the registry was disposed.
func (r *FrameRegistry) removeWaiter(id cdp.FrameID, w *frameWaiter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws := r.waiters[id]
	for i, cand := range ws {
		if cand == w {
			ws = append(ws[:i], ws[i+1:]...)
			if len(ws) == 0 {
				delete(r.waiters, id)
			} else {
				r.waiters[id] = ws
			}
			return true
		}
	}
	return false
}

// Dispose detaches every source and drops all registry state. Pending
// waiters fail with ErrRegistryDisposed. Subscribers receive no further
// events.
func (r *FrameRegistry) Dispose() {
	r.logger.Debugf("FrameRegistry:Dispose", "")

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	subs := make([]sourceSubscription, 0, len(r.sources))
	for _, sub := range r.sources {
		subs = append(subs, sub)
	}
	var pending []*frameWaiter
	for _, ws := range r.waiters {
		pending = append(pending, ws...)
	}
	r.frames = make(map[cdp.FrameID]*frameRecord)
	r.targetFrames = make(map[target.ID]map[cdp.FrameID]struct{})
	r.topFrame = nil
	r.pendingTraces = make(map[cdp.FrameID]*cdpruntime.StackTrace)
	r.waiters = make(map[cdp.FrameID][]*frameWaiter)
	r.sources = make(map[target.ID]sourceSubscription)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.source.Off(sub.handle)
	}
	for _, w := range pending {
		close(w.ch)
	}
}
