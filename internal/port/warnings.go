package port

import "github.com/AsherBond/lmstudio-go/internal/wire"

// communicationWarning implements §4.6.6: every local protocol-sanity
// failure (unknown ID, inbound schema validation failure) routes
// through here. The counter is capped at 5; the 5th warning is still
// logged and emitted, then followed by a one-shot suppression notice,
// after which further warnings do neither (P6).
func (p *Port) communicationWarning(text string) {
	p.mu.Lock()
	if p.warningsSuppressed {
		p.mu.Unlock()
		return
	}
	p.warningCount++
	count := p.warningCount
	p.recentWarnings = append(p.recentWarnings, text)
	if len(p.recentWarnings) > maxRecentWarnings {
		p.recentWarnings = p.recentWarnings[len(p.recentWarnings)-maxRecentWarnings:]
	}
	if count >= 5 {
		p.warningsSuppressed = true
	}
	p.mu.Unlock()

	p.logger.Warn("communication warning", "warning", text, "count", count)
	if err := p.send(wire.Frame{Type: wire.TypeCommunicationWarningOut, Warning: text}); err != nil {
		p.logger.Warn("failed to emit communication warning to peer", "error", err)
	}

	if count == 5 {
		p.logger.Warn("communication warnings suppressed after 5; further warnings will not be logged or sent")
	}
}

// maxRecentWarnings bounds the ring buffer a diagnostics page can read
// via RecentWarnings; it is not part of the protocol's own 5-warning cap.
const maxRecentWarnings = 10

// WarningCount reports how many communication warnings have fired so
// far, for a diagnostics page to display; it never mutates port state.
func (p *Port) WarningCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.warningCount
}

// RecentWarnings returns a copy of the last few communication warning
// texts, oldest first.
func (p *Port) RecentWarnings() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.recentWarnings))
	copy(out, p.recentWarnings)
	return out
}
