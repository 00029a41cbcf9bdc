package common

import (
	"sync"

	"github.com/chromedp/cdproto/cdp"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"

	"github.com/inspectkit/frameregistry/log"
)

// Frame represents a navigation context (a document and its browsing
// context) as reported by a single target. During an out-of-process
// transfer two distinct Frame objects briefly share one frame ID, each
// attributed to its own target.
type Frame struct {
	id       cdp.FrameID
	parentID cdp.FrameID
	targetID target.ID

	propertiesMu sync.RWMutex
	name         string
	url          string
	loaderID     string

	creationStackTrace *cdpruntime.StackTrace

	logger *log.Logger
}

// NewFrame creates a new frame attributed to the given target. An empty
// parentID marks the top (main) frame of its page.
func NewFrame(
	id cdp.FrameID, parentID cdp.FrameID, targetID target.ID, logger *log.Logger,
) *Frame {
	return &Frame{
		id:       id,
		parentID: parentID,
		targetID: targetID,
		logger:   logger,
	}
}

// ID returns the frame ID. It is stable across same-target navigations
// and is reused when the frame transfers between targets.
func (f *Frame) ID() cdp.FrameID {
	return f.id
}

// ParentID returns the ID of the parent frame, or "" for the top frame.
func (f *Frame) ParentID() cdp.FrameID {
	return f.parentID
}

// TargetID returns the ID of the target this frame object was reported
// by.
func (f *Frame) TargetID() target.ID {
	return f.targetID
}

// IsMainFrame returns true if the frame is the top (root) frame of its
// page.
func (f *Frame) IsMainFrame() bool {
	return f.parentID == ""
}

// Name returns the frame name as of the last navigation.
func (f *Frame) Name() string {
	f.propertiesMu.RLock()
	defer f.propertiesMu.RUnlock()
	return f.name
}

// URL returns the frame URL as of the last navigation.
func (f *Frame) URL() string {
	f.propertiesMu.RLock()
	defer f.propertiesMu.RUnlock()
	return f.url
}

// LoaderID returns the loader ID of the current document.
func (f *Frame) LoaderID() string {
	f.propertiesMu.RLock()
	defer f.propertiesMu.RUnlock()
	return f.loaderID
}

// CreationStackTrace returns the stack trace captured when the frame
// was created, or nil if none was reported.
func (f *Frame) CreationStackTrace() *cdpruntime.StackTrace {
	f.propertiesMu.RLock()
	defer f.propertiesMu.RUnlock()
	return f.creationStackTrace
}

// SetCreationStackTrace attaches creation provenance to the frame. The
// registry uses it to carry diagnostics across a cross-target transfer.
func (f *Frame) SetCreationStackTrace(st *cdpruntime.StackTrace) {
	f.propertiesMu.Lock()
	defer f.propertiesMu.Unlock()
	f.creationStackTrace = st
}

// Navigated updates the frame's document metadata after a navigation
// committed. Frame sources call this before reporting the navigation to
// the registry.
func (f *Frame) Navigated(name, url, loaderID string) {
	f.logger.Debugf("Frame:navigated", "fid:%v furl:%s", f.id, url)

	f.propertiesMu.Lock()
	defer f.propertiesMu.Unlock()
	f.name = name
	f.url = url
	f.loaderID = loaderID
}
