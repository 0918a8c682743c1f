package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/user/iris/internal/db"
)

// Sessions prints the archive listing, one session per line.
func Sessions(w io.Writer, list []*db.ArchivedSession) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No archived sessions.")
		return
	}
	for _, s := range list {
		fmt.Fprintf(w, "%s  %-12s  %4d commands  %3d errors  lasted %-12s  %-16s  %s\n",
			s.ID, s.Hostname, s.EventCount, s.ErrorCount,
			relDuration(s.EndTime.Sub(s.StartTime)), humanize.Time(s.StartTime), s.TracePath)
	}
}

// Hits prints archive search results grouped under their session.
func Hits(w io.Writer, hits []db.SearchHit) {
	current := ""
	for _, h := range hits {
		if h.SessionID != current {
			current = h.SessionID
			fmt.Fprintf(w, "== %s (%s)\n", h.SessionID, h.TracePath)
		}
		ev := h.Event
		fmt.Fprintf(w, "[%s] Event #%d (Exit: %d)\n", timestamp(ev.Timestamp), ev.ID, ev.ExitCode)
		writeEventBody(w, ev, false)
		fmt.Fprintln(w, strings.Repeat("-", separatorWidth))
	}
	fmt.Fprintf(w, "Found %d matching events.\n", len(hits))
}
