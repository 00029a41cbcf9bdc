package common

import (
	"github.com/chromedp/cdproto/cdp"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
)

// FrameSource is the per-target event stream the registry observes. One
// instance exists per connected target; it reports the frames local to
// that target via the EventSource* events. How a source learns about
// its frames (and the transport behind it) is not the registry's
// concern.
type FrameSource interface {
	EventEmitter
	TargetID() target.ID
}

// FrameDetachedEvent is the payload of EventSourceFrameDetached. The
// reason distinguishes a plain removal from a cross-target transfer
// swap.
type FrameDetachedEvent struct {
	Frame  *Frame
	Reason cdppage.FrameDetachedReason
}

// ResourceAddedEvent is the payload of EventSourceResourceAdded and of
// the registry's EventResourceAdded republish.
type ResourceAddedEvent struct {
	FrameID  cdp.FrameID
	Resource *cdppage.FrameResource
}

// AttachSource subscribes the registry to a frame source. Source events
// mutate the registry synchronously on the source's emitting goroutine.
// Attaching a source for an already attached target replaces the old
// subscription.
func (r *FrameRegistry) AttachSource(src FrameSource) {
	tid := src.TargetID()
	r.logger.Debugf("FrameRegistry:AttachSource", "tid:%v", tid)

	handle := src.On([]string{
		EventSourceFrameAdded,
		EventSourceFrameDetached,
		EventSourceFrameNavigated,
		EventSourceResourceAdded,
	}, func(ev Event) {
		switch ev.typ {
		case EventSourceFrameAdded:
			r.AddFrame(ev.data.(*Frame))
		case EventSourceFrameDetached:
			dev := ev.data.(*FrameDetachedEvent)
			r.RemoveFrame(dev.Frame, dev.Reason == cdppage.FrameDetachedReasonSwap)
		case EventSourceFrameNavigated:
			r.FrameNavigated(ev.data.(*Frame))
		case EventSourceResourceAdded:
			r.ResourceAdded(ev.data.(*ResourceAddedEvent))
		}
	})

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		src.Off(handle)
		return
	}
	old, replaced := r.sources[tid]
	r.sources[tid] = sourceSubscription{source: src, handle: handle}
	r.mu.Unlock()

	if replaced {
		old.source.Off(old.handle)
	}
}

// DetachSource unsubscribes the registry from a frame source and
// bulk-releases every frame attributed to its target. Detaching an
// unattached source only runs the bulk release, which is then a no-op.
func (r *FrameRegistry) DetachSource(src FrameSource) {
	tid := src.TargetID()
	r.logger.Debugf("FrameRegistry:DetachSource", "tid:%v", tid)

	r.mu.Lock()
	sub, ok := r.sources[tid]
	delete(r.sources, tid)
	r.mu.Unlock()

	if ok {
		sub.source.Off(sub.handle)
	}
	r.TargetDetached(tid)
}
