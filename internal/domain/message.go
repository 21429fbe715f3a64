package domain

import (
	"strings"
	"time"
)

// InboundMessage is one provider webhook delivery, constructed once per request.
// ProviderMessageID repeats on redelivery; everything else is owned by the
// request and discarded when handling ends.
type InboundMessage struct {
	ProviderMessageID string
	From              string
	To                string
	Body              string
	Media             []MediaAttachment
	ReceivedAt        time.Time
	RemoteAddr        string
}

// MediaAttachment is a media reference declared by the provider. It is never
// persisted directly; media intake turns it into a StoredAttachment.
type MediaAttachment struct {
	URL         string
	ContentType string
}

// StoredAttachment describes media the processor accepted and stored.
type StoredAttachment struct {
	ID          string
	URL         string
	ContentType string
}

// NormalizeAddress canonicalizes a provider contact address so the same user
// always resolves to the same identity: channel prefixes like "whatsapp:"
// are dropped and phone numbers are reduced to their digits. Non-phone
// addresses fall back to a lowercased trim.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if i := strings.IndexByte(addr, ':'); i >= 0 {
		addr = addr[i+1:]
	}
	if len(addr) > 0 && (addr[0] == '+' || (addr[0] >= '0' && addr[0] <= '9')) {
		var b strings.Builder
		for _, r := range addr {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	return strings.ToLower(addr)
}
