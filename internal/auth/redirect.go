package auth

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

const DefaultRedirect = "/chat"

// SafeRedirect keeps post-login redirects on this site. Anything that is not a
// plain local path, or that points back at the login page, becomes DefaultRedirect.
func SafeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return DefaultRedirect
	}
	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" {
		return DefaultRedirect
	}
	if parsed.Path == "/login" || strings.HasPrefix(parsed.Path, "/login/") {
		return DefaultRedirect
	}
	return target
}

type redirectHistory struct {
	issued []time.Time
}

// RedirectGuard notices clients that keep bouncing between the login page and
// a protected page. Each subject may be sent to its target at most limit times
// per window; after that Next answers "/" until the window drains.
type RedirectGuard struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	history map[string]*redirectHistory
}

func NewRedirectGuard(limit int, window time.Duration) *RedirectGuard {
	return &RedirectGuard{
		limit:   limit,
		window:  window,
		now:     time.Now,
		history: make(map[string]*redirectHistory),
	}
}

// Next records a redirect for subject and returns where to send it, plus
// whether a loop was detected.
func (g *RedirectGuard) Next(subject, target string) (string, bool) {
	target = SafeRedirect(target)

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	h, ok := g.history[subject]
	if !ok {
		h = &redirectHistory{}
		g.history[subject] = h
	}
	h.issued = pruneBefore(h.issued, now.Add(-g.window))
	if len(h.issued) >= g.limit {
		return "/", true
	}
	h.issued = append(h.issued, now)
	return target, false
}

// Reset forgets subject, e.g. after sign-out.
func (g *RedirectGuard) Reset(subject string) {
	g.mu.Lock()
	delete(g.history, subject)
	g.mu.Unlock()
}

// Sweep drops subjects with no redirects inside the window.
func (g *RedirectGuard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-g.window)
	removed := 0
	for subject, h := range g.history {
		h.issued = pruneBefore(h.issued, cutoff)
		if len(h.issued) == 0 {
			delete(g.history, subject)
			removed++
		}
	}
	return removed
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}
