package simrt

import (
	goerrors "errors"

	"github.com/charmbracelet/lipgloss"

	"github.com/embedrt/gcbind/errors"
)

var exceptionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

// SetErrorColor toggles colored exception rendering. Global property of the
// runtime, matching the behavior of the error_color control message.
func (r *Runtime) SetErrorColor(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errColor = on
}

// ErrorColor reports whether colored rendering is enabled.
func (r *Runtime) ErrorColor() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errColor
}

// RenderException renders an exception into a displayable message. Foreign
// exceptions render as the runtime's own message; anything else falls back
// to the error text.
func (r *Runtime) RenderException(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	var e *errors.Error
	if goerrors.As(err, &e) && e.Kind == errors.KindForeignException {
		msg = e.Detail
	}

	r.mu.Lock()
	color := r.errColor
	r.mu.Unlock()

	if color {
		return exceptionStyle.Render(msg)
	}
	return msg
}
