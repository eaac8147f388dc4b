package poller

import (
	"github.com/avntro/mission-control/workspace"
)

// FileRef names one workspace file.
type FileRef struct {
	Agent string `json:"agent"`
	Name  string `json:"name"`
}

// Editor is the state of the workspace file pane. While Editing, changes
// reported by the server are remembered instead of refetched so the buffer
// is never clobbered; EndEdit reports whether one arrived.
type Editor struct {
	File    *FileRef
	Editing bool
	Buffer  string
	Content workspace.Content

	pending bool
}

// Open shows ref, discarding any edit in progress.
func (e *Editor) Open(ref FileRef) {
	*e = Editor{File: &ref}
}

// Close hides the pane.
func (e *Editor) Close() {
	*e = Editor{}
}

func (e *Editor) is(agentName, file string) bool {
	return e.File != nil && e.File.Agent == agentName && e.File.Name == file
}

// Loaded stores freshly fetched content. Content for a file that is no
// longer open is dropped.
func (e *Editor) Loaded(c workspace.Content) bool {
	if !e.is(c.Agent, c.Filename) {
		return false
	}
	e.Content = c
	return true
}

// BeginEdit enters edit mode with the displayed content in the buffer.
func (e *Editor) BeginEdit() bool {
	if e.File == nil {
		return false
	}
	e.Editing = true
	e.Buffer = e.Content.Content
	return true
}

// Notice inspects reported changes and returns whether the open file must
// be refetched now.
func (e *Editor) Notice(changes []workspace.Change) bool {
	for _, c := range changes {
		if !e.is(c.Agent, c.Filename) {
			continue
		}
		if e.Editing {
			e.pending = true
			return false
		}
		return true
	}
	return false
}

// Pending reports whether a change arrived during the current edit.
func (e *Editor) Pending() bool { return e.pending }

// EndEdit leaves edit mode and returns whether a change arrived meanwhile.
func (e *Editor) EndEdit() bool {
	e.Editing = false
	e.Buffer = ""
	refetch := e.pending
	e.pending = false
	return refetch
}
