package archive

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ContentCID returns the CIDv1 (raw codec, sha2-256) of data.
func ContentCID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("archive: hash content: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// CanonicalProofCID renders a proof CID as a base32 CIDv1 string so that v0 and v1 spellings of
// the same CID share a key. Strings that are not CIDs map to the CIDv1 of their raw bytes.
func CanonicalProofCID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty proof cid", ErrInvalidKey)
	}
	if c, err := cid.Decode(s); err == nil {
		return cid.NewCidV1(c.Type(), c.Hash()).String(), nil
	}
	c, err := ContentCID([]byte(s))
	if err != nil {
		return "", err
	}
	return c.String(), nil
}
