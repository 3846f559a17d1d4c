package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/openrufus/rufus/internal/transcript"
)

// renderer prints the part of the transcript the reader has not seen yet.
type renderer struct {
	out  io.Writer
	seen int
}

func (r *renderer) reset() { r.seen = 0 }

func (r *renderer) render(snap transcript.Snapshot) {
	visible := snap.VisibleMessages
	if r.seen > len(visible) {
		r.seen = 0
	}

	if snap.IsMinimized {
		if n := len(visible) - r.seen; n > 0 {
			fmt.Fprintf(r.out, "(%d new message(s) hidden, /min to restore)\n", n)
		}
	} else {
		for _, msg := range visible[r.seen:] {
			writeMessage(r.out, msg)
		}
		r.seen = len(visible)
	}

	if snap.ShowErrorModal {
		fmt.Fprintf(r.out, "!! %s (/dismiss to close)\n", snap.Error)
	}
}

func writeMessage(w io.Writer, msg transcript.Message) {
	switch msg.Role {
	case transcript.RoleUser:
		fmt.Fprintf(w, "you> %s\n", msg.Content.Text())
	case transcript.RoleAssistant:
		fmt.Fprintf(w, "rufus> %s\n", msg.Content.Text())
	case transcript.RoleTool:
		writeToolMessage(w, msg)
	}
}

func writeToolMessage(w io.Writer, msg transcript.Message) {
	name := msg.Name
	if name == "" {
		name = "tool"
	}

	if msg.Content.Kind() != transcript.ContentList {
		fmt.Fprintf(w, "  [%s] %s\n", name, msg.Content.String())
		return
	}

	items, err := msg.Content.Items()
	if err != nil {
		fmt.Fprintf(w, "  [%s] %s\n", name, msg.Content.String())
		return
	}
	fmt.Fprintf(w, "  [%s] %d result(s)\n", name, len(items))
	for _, item := range items {
		fmt.Fprintf(w, "    - %s\n", strings.TrimSpace(string(item)))
	}
}
