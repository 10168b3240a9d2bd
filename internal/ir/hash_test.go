package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestDigestDeterminism(t *testing.T) {
	req := IRObject{
		"cid":          IRString("3185027f-0574-6f55-2668-3a38fdb5de98"),
		"command_type": IRString("PaymentCommand"),
		"command":      IRObject{"payment": IRObject{"reference_id": IRString("ref")}},
	}

	d1, err := RequestDigest(req)
	require.NoError(t, err)
	d2, err := RequestDigest(req)
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "RequestDigest must be deterministic")
	assert.Len(t, d1, 64, "SHA-256 hex is 64 characters")
}

func TestRequestDigestChangesWithContent(t *testing.T) {
	a := IRObject{"cid": IRString("1"), "command": IRObject{"x": IRInt(1)}}
	b := IRObject{"cid": IRString("1"), "command": IRObject{"x": IRInt(2)}}

	assert.NotEqual(t, MustRequestDigest(a), MustRequestDigest(b))
}

func TestRequestDigestIgnoresNullMembers(t *testing.T) {
	a := IRObject{"cid": IRString("1")}
	b := IRObject{"cid": IRString("1"), "description": IRNull{}}

	assert.Equal(t, MustRequestDigest(a), MustRequestDigest(b))
}

func TestDigestDomainSeparation(t *testing.T) {
	payload := IRObject{"object_id": IRString("ref"), "payload": IRObject{}}

	rev, err := RevisionDigest("ref", IRObject{})
	require.NoError(t, err)

	// Same canonical bytes under the request domain must not collide.
	assert.NotEqual(t, MustRequestDigest(payload), rev)
}
