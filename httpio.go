package goSession

import (
	"net/http"
	"strings"
)

// Request is the read side of an HTTP exchange as the engine sees it.
type Request interface {
	Method() string
	Header(name string) string
	// Cookies returns every value sent under name, in request order.
	Cookies(name string) []string
}

// Response is the write side of an HTTP exchange.
type Response interface {
	SetHeader(name, value string)
	// AddHeader appends value to a comma separated list header, skipping duplicates.
	AddHeader(name, value string)
	DeleteHeader(name string)
	SetCookie(c *http.Cookie)
}

type httpRequest struct {
	r *http.Request
}

// NewHTTPRequest adapts a net/http request.
func NewHTTPRequest(r *http.Request) Request {
	return httpRequest{r: r}
}

func (h httpRequest) Method() string { return h.r.Method }

func (h httpRequest) Header(name string) string {
	return strings.TrimSpace(h.r.Header.Get(name))
}

func (h httpRequest) Cookies(name string) []string {
	named := h.r.CookiesNamed(name)
	if len(named) == 0 {
		return nil
	}
	out := make([]string, 0, len(named))
	for _, c := range named {
		out = append(out, c.Value)
	}
	return out
}

type httpResponse struct {
	w http.ResponseWriter
}

// NewHTTPResponse adapts a net/http response writer. Headers must be written
// before the handler writes the status line.
func NewHTTPResponse(w http.ResponseWriter) Response {
	return httpResponse{w: w}
}

func (h httpResponse) SetHeader(name, value string) {
	h.w.Header().Set(name, value)
}

func (h httpResponse) AddHeader(name, value string) {
	existing := h.w.Header().Get(name)
	if existing == "" {
		h.w.Header().Set(name, value)
		return
	}
	for _, part := range strings.Split(existing, ",") {
		if strings.EqualFold(strings.TrimSpace(part), value) {
			return
		}
	}
	h.w.Header().Set(name, existing+", "+value)
}

func (h httpResponse) DeleteHeader(name string) {
	h.w.Header().Del(name)
}

func (h httpResponse) SetCookie(c *http.Cookie) {
	http.SetCookie(h.w, c)
}
