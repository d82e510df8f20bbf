package sign

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// HelloTranscript builds the canonical byte string signed in a HI frame:
//
//	relaymesh:hello|v=1|alg=<alg>|id=<node id>|exp=<unix seconds>|pub=<b64url>|nonce=<b64url>
func HelloTranscript(alg, nodeID string, pub, nonce []byte, expire float64) []byte {
	b64 := base64.RawURLEncoding
	var sb strings.Builder
	sb.Grow(96 + len(nodeID))
	sb.WriteString("relaymesh:hello|v=1|alg=")
	sb.WriteString(strings.ToLower(strings.TrimSpace(alg)))
	sb.WriteString("|id=")
	sb.WriteString(nodeID)
	sb.WriteString("|exp=")
	sb.WriteString(strconv.FormatFloat(expire, 'f', -1, 64))
	sb.WriteString("|pub=")
	sb.WriteString(b64.EncodeToString(pub))
	sb.WriteString("|nonce=")
	sb.WriteString(b64.EncodeToString(nonce))
	return []byte(sb.String())
}
