package registration

import (
	"crypto/rand"
	"strings"
)

// Crockford's base32: no I, L, O or U to misread.
const ticketAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var (
	randRead = rand.Read // mockable

	ticketNormalizer = strings.NewReplacer("O", "0", "I", "1", "L", "1")
)

// NewTicketCode returns a random ticket code: RC-XXXX-XXXX.
func NewTicketCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := randRead(buf); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.Grow(12)
	sb.WriteString("RC-")
	for i, b := range buf {
		if i == 4 {
			sb.WriteByte('-')
		}
		sb.WriteByte(ticketAlphabet[b&31])
	}
	return sb.String(), nil
}

// NormalizeTicketCode fixes the usual typing mistakes in a ticket code: case, spaces and ambiguous letters.
func NormalizeTicketCode(code string) string {
	code = strings.ReplaceAll(strings.ToUpper(code), "-", "")
	code = strings.Join(strings.Fields(code), "")
	if len(code) == 10 && strings.HasPrefix(code, "RC") {
		code = code[2:]
	}
	code = ticketNormalizer.Replace(code)
	if len(code) != 8 {
		return "RC-" + code
	}
	return "RC-" + code[:4] + "-" + code[4:]
}
