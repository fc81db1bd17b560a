package hub

import (
	"crypto/rand"
	"math/big"

	"github.com/pewpew-tabletop/range-backend/internal/engine"
)

// codeAlphabet drops 0/O/I/1 so codes survive being read aloud in a room.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLen = 6

var rolePrefix = map[engine.Role]byte{
	engine.RoleRed:      'R',
	engine.RoleBlue:     'B',
	engine.RoleAudience: 'A',
}

// newJoinCode returns a role-prefixed random code, e.g. "R7KQ2MX": seven
// alphanumeric characters total. The prefix is cosmetic; authority comes
// from the hub's code index.
func newJoinCode(role engine.Role) (string, error) {
	body := make([]byte, codeLen)
	for i := range body {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		body[i] = codeAlphabet[n.Int64()]
	}
	prefix, ok := rolePrefix[role]
	if !ok {
		prefix = 'X'
	}
	return string(prefix) + string(body), nil
}
