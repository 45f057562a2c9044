package registration

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ticketRegex = regexp.MustCompile(`^RC-[0-9A-HJKMNP-TV-Z]{4}-[0-9A-HJKMNP-TV-Z]{4}$`)

func TestNewTicketCode(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		code, err := NewTicketCode()
		require.NoError(t, err)
		require.Regexp(t, ticketRegex, code)
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 990, "ticket codes should hardly ever collide")

	t.Run("rand failure", func(t *testing.T) {
		orig := randRead
		randRead = func([]byte) (int, error) { return 0, errors.New("no entropy") }
		defer func() { randRead = orig }()

		_, err := NewTicketCode()
		assert.Error(t, err)
	})
}

func TestNormalizeTicketCode(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "RC-AB12-CD34", want: "RC-AB12-CD34"},
		{in: "  rc-ab12-cd34 ", want: "RC-AB12-CD34"},
		{in: "ab12cd34", want: "RC-AB12-CD34"},
		{in: "rc ab12 cd34", want: "RC-AB12-CD34"},
		{in: "RC-OI1L-0000", want: "RC-0111-0000"},
		{in: "RCAB-CD34", want: "RC-RCAB-CD34"},
		{in: "lol", want: "RC-101"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTicketCode(tt.in))
		})
	}
}
