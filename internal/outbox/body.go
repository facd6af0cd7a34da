package outbox

import "strings"

const (
	mediaBodyPrefix    = "[6|"
	mediaBodySeparator = "-|-"
)

// FormatMediaBody encodes uploaded media ids and a caption into the
// bracketed mini-format the remote service renders as a gallery:
// [6|id1,id2-|-caption].
func FormatMediaBody(ids []string, caption string) string {
	return mediaBodyPrefix + strings.Join(ids, ",") + mediaBodySeparator + caption + "]"
}

// ParseMediaBody decodes a media body. ok is false for plain text bodies.
func ParseMediaBody(body string) (ids []string, caption string, ok bool) {
	if !strings.HasPrefix(body, mediaBodyPrefix) || !strings.HasSuffix(body, "]") {
		return nil, "", false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(body, mediaBodyPrefix), "]")
	idPart, caption, found := strings.Cut(inner, mediaBodySeparator)
	if !found {
		return nil, "", false
	}
	if idPart != "" {
		ids = strings.Split(idPart, ",")
	}
	return ids, caption, true
}
