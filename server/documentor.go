package server

import (
	"fmt"
	"net/http"

	"xrpc/registry"
)

// Documentor renders documentation for requests that carry no envelope.
// It receives the manifest snapshot taken when the server started
// dispatching; later registrations do not appear until the next run.
type Documentor interface {
	ServeDocs(w http.ResponseWriter, r *http.Request, manifest []registry.Entry)
}

// TextDocumentor is the default documentation collaborator: a plain-text
// listing of registered procedures. Applications wanting HTML pages plug in
// their own Documentor.
type TextDocumentor struct {
	Title string
}

func (d *TextDocumentor) ServeDocs(w http.ResponseWriter, _ *http.Request, manifest []registry.Entry) {
	title := d.Title
	if title == "" {
		title = "RPC service"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s\n\nRegistered procedures:\n", title)
	for _, entry := range manifest {
		if entry.Help != "" {
			fmt.Fprintf(w, "  %s - %s\n", entry.Name, entry.Help)
		} else {
			fmt.Fprintf(w, "  %s\n", entry.Name)
		}
	}
	fmt.Fprintf(w, "\nPOST an envelope to this endpoint to invoke a procedure.\n")
}
