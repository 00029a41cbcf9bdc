package common

import (
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"

	"github.com/inspectkit/frameregistry/log"
)

// Ensure CDPFrameSource implements the FrameSource interface.
var _ FrameSource = &CDPFrameSource{}

// CDPFrameSource translates raw CDP messages of one target into the
// source event stream the registry consumes. It keeps a local model of
// the target's frame tree so a detached frame takes its child frames
// with it. Messages are handed in by the caller; the transport they
// arrived on is not this package's concern.
type CDPFrameSource struct {
	BaseEventEmitter

	targetID target.ID

	framesMu sync.RWMutex
	frames   map[cdp.FrameID]*Frame

	logger *log.Logger
}

// NewCDPFrameSource creates a frame source for the given target.
func NewCDPFrameSource(targetID target.ID, logger *log.Logger) *CDPFrameSource {
	return &CDPFrameSource{
		BaseEventEmitter: NewBaseEventEmitter(),
		targetID:         targetID,
		frames:           make(map[cdp.FrameID]*Frame),
		logger:           logger,
	}
}

// TargetID returns the ID of the target this source reports for.
func (s *CDPFrameSource) TargetID() target.ID {
	return s.targetID
}

// OnMessage consumes one CDP message delivered for this source's
// target. Messages other than the page and network events the source
// understands are ignored, as are events a newer protocol revision
// might add.
func (s *CDPFrameSource) OnMessage(msg *cdproto.Message) error {
	if msg.Method == "" {
		return nil
	}
	ev, err := cdproto.UnmarshalMessage(msg)
	if err != nil {
		if _, ok := err.(cdp.ErrUnknownCommandOrEvent); ok {
			// An event this cdproto revision doesn't know. Harmless.
			return nil
		}
		return err
	}

	switch ev := ev.(type) {
	case *cdppage.EventFrameAttached:
		s.frameAttached(ev.FrameID, ev.ParentFrameID, ev.Stack)
	case *cdppage.EventFrameDetached:
		s.frameDetached(ev.FrameID, ev.Reason)
	case *cdppage.EventFrameNavigated:
		s.frameNavigated(ev.Frame)
	case *cdppage.EventNavigatedWithinDocument:
		s.navigatedWithinDocument(ev.FrameID, ev.URL)
	case *network.EventResponseReceived:
		s.responseReceived(ev)
	}
	return nil
}

func (s *CDPFrameSource) frameAttached(
	frameID, parentFrameID cdp.FrameID, stack *cdpruntime.StackTrace,
) {
	s.logger.Debugf("CDPFrameSource:frameAttached", "tid:%v fid:%v pfid:%v",
		s.targetID, frameID, parentFrameID)

	s.framesMu.Lock()
	if _, ok := s.frames[frameID]; ok {
		s.framesMu.Unlock()
		return
	}
	frame := NewFrame(frameID, parentFrameID, s.targetID, s.logger)
	if stack != nil {
		frame.SetCreationStackTrace(stack)
	}
	s.frames[frameID] = frame
	s.framesMu.Unlock()

	s.Emit(EventSourceFrameAdded, frame)
}

func (s *CDPFrameSource) frameDetached(frameID cdp.FrameID, reason cdppage.FrameDetachedReason) {
	s.logger.Debugf("CDPFrameSource:frameDetached", "tid:%v fid:%v reason:%s",
		s.targetID, frameID, reason)

	s.framesMu.RLock()
	frame, ok := s.frames[frameID]
	s.framesMu.RUnlock()
	if !ok {
		return
	}
	// Child frames local to this target go away with their parent, but
	// only the detached frame itself carries the swap reason.
	s.removeChildFramesRecursively(frame)
	s.removeFrame(frame, reason)
}

func (s *CDPFrameSource) removeChildFramesRecursively(frame *Frame) {
	for _, child := range s.childFrames(frame.ID()) {
		s.removeChildFramesRecursively(child)
		s.removeFrame(child, cdppage.FrameDetachedReasonRemove)
	}
}

func (s *CDPFrameSource) childFrames(parentID cdp.FrameID) []*Frame {
	s.framesMu.RLock()
	defer s.framesMu.RUnlock()
	var children []*Frame
	for _, f := range s.frames {
		if f.ParentID() == parentID {
			children = append(children, f)
		}
	}
	return children
}

func (s *CDPFrameSource) removeFrame(frame *Frame, reason cdppage.FrameDetachedReason) {
	s.framesMu.Lock()
	delete(s.frames, frame.ID())
	s.framesMu.Unlock()

	s.Emit(EventSourceFrameDetached, &FrameDetachedEvent{Frame: frame, Reason: reason})
}

func (s *CDPFrameSource) frameNavigated(cdpFrame *cdp.Frame) {
	if cdpFrame == nil {
		return
	}
	s.logger.Debugf("CDPFrameSource:frameNavigated", "tid:%v fid:%v furl:%s",
		s.targetID, cdpFrame.ID, cdpFrame.URL)

	s.framesMu.Lock()
	frame, ok := s.frames[cdpFrame.ID]
	if !ok {
		// An initial navigation can be the first time this target
		// mentions the frame at all, e.g. the main frame right after
		// attach.
		frame = NewFrame(cdpFrame.ID, cdpFrame.ParentID, s.targetID, s.logger)
		s.frames[cdpFrame.ID] = frame
	}
	s.framesMu.Unlock()

	if !ok {
		s.Emit(EventSourceFrameAdded, frame)
	}
	frame.Navigated(cdpFrame.Name, cdpFrame.URL, string(cdpFrame.LoaderID))
	s.Emit(EventSourceFrameNavigated, frame)
}

func (s *CDPFrameSource) navigatedWithinDocument(frameID cdp.FrameID, url string) {
	s.framesMu.RLock()
	frame, ok := s.frames[frameID]
	s.framesMu.RUnlock()
	if !ok {
		return
	}
	frame.Navigated(frame.Name(), url, frame.LoaderID())
	s.Emit(EventSourceFrameNavigated, frame)
}

func (s *CDPFrameSource) responseReceived(ev *network.EventResponseReceived) {
	if ev.Response == nil || ev.FrameID == "" {
		return
	}
	s.framesMu.RLock()
	_, ok := s.frames[ev.FrameID]
	s.framesMu.RUnlock()
	if !ok {
		return
	}
	s.Emit(EventSourceResourceAdded, &ResourceAddedEvent{
		FrameID: ev.FrameID,
		Resource: &cdppage.FrameResource{
			URL:      ev.Response.URL,
			Type:     ev.Type,
			MimeType: ev.Response.MimeType,
		},
	})
}
