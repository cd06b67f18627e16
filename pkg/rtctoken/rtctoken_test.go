package rtctoken

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodedToken mirrors what the relay SDK recovers from a token.
type decodedToken struct {
	signature []byte
	issueTs   uint32
	expireTs  uint32
	salt      uint32
	grants    []PrivilegeGrant
}

func decodeToken(t *testing.T, token, appID string) decodedToken {
	t.Helper()

	require.True(t, strings.HasPrefix(token, Version+appID), "token must start with version tag and app id")

	body, err := base64.StdEncoding.DecodeString(token[len(Version)+len(appID):])
	require.NoError(t, err)

	r := bytes.NewReader(body)
	var sigLen uint16
	require.NoError(t, binary.Read(r, binary.BigEndian, &sigLen))
	sig := make([]byte, sigLen)
	_, err = r.Read(sig)
	require.NoError(t, err)

	var d decodedToken
	d.signature = sig
	require.NoError(t, binary.Read(r, binary.BigEndian, &d.issueTs))
	require.NoError(t, binary.Read(r, binary.BigEndian, &d.expireTs))
	require.NoError(t, binary.Read(r, binary.BigEndian, &d.salt))

	var count uint16
	require.NoError(t, binary.Read(r, binary.BigEndian, &count))
	for i := 0; i < int(count); i++ {
		var g PrivilegeGrant
		var p uint16
		require.NoError(t, binary.Read(r, binary.BigEndian, &p))
		require.NoError(t, binary.Read(r, binary.BigEndian, &g.ExpireTs))
		g.Privilege = Privilege(p)
		d.grants = append(d.grants, g)
	}
	assert.Zero(t, r.Len(), "no trailing bytes expected")
	return d
}

func TestBuildToken_PublisherPrivileges(t *testing.T) {
	token, err := BuildToken("appX", "secretY", "call_1_2", 1, 3600, true)
	require.NoError(t, err)

	d := decodeToken(t, token, "appX")

	assert.Equal(t, d.issueTs+3600, d.expireTs)
	require.Len(t, d.grants, 4)
	assert.Equal(t, PrivilegeJoinChannel, d.grants[0].Privilege)
	assert.Equal(t, PrivilegePublishAudio, d.grants[1].Privilege)
	assert.Equal(t, PrivilegePublishVideo, d.grants[2].Privilege)
	assert.Equal(t, PrivilegePublishData, d.grants[3].Privilege)
	for _, g := range d.grants {
		assert.Equal(t, d.expireTs, g.ExpireTs, "all privileges share the token expiry")
	}
}

func TestBuildToken_SubscriberGetsJoinOnly(t *testing.T) {
	token, err := BuildToken("appX", "secretY", "call_1_2", 2, 600, false)
	require.NoError(t, err)

	d := decodeToken(t, token, "appX")
	require.Len(t, d.grants, 1)
	assert.Equal(t, PrivilegeJoinChannel, d.grants[0].Privilege)
}

func TestBuildToken_SignatureVerifies(t *testing.T) {
	const (
		appID   = "app-id-123"
		secret  = "super-secret"
		channel = "call_7_9"
		uid     = uint32(7)
	)

	token, err := buildTokenAt(appID, secret, channel, uid, 120, false, 1700000000, 424242)
	require.NoError(t, err)

	d := decodeToken(t, token, appID)
	assert.Equal(t, uint32(1700000000), d.issueTs)
	assert.Equal(t, uint32(1700000120), d.expireTs)
	assert.Equal(t, uint32(424242), d.salt)

	message := fmt.Sprintf("%s%s%s%d%d%d%d", secret, appID, channel, uid, d.issueTs, d.expireTs, d.salt)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	assert.True(t, hmac.Equal(mac.Sum(nil), d.signature), "signature must verify against recomputed HMAC")
}

func TestBuildToken_Deterministic(t *testing.T) {
	a, err := buildTokenAt("app", "sec", "call_1_2", 1, 60, true, 1700000000, 1)
	require.NoError(t, err)
	b, err := buildTokenAt("app", "sec", "call_1_2", 1, 60, true, 1700000000, 1)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same inputs and salt must yield the same token")

	c, err := buildTokenAt("app", "sec", "call_1_2", 1, 60, true, 1700000000, 2)
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "different salt must change the token")
}

func TestBuildToken_InputValidation(t *testing.T) {
	cases := []struct {
		name    string
		appID   string
		secret  string
		channel string
		ttl     int
	}{
		{"empty app id", "", "s", "call_1_2", 60},
		{"empty secret", "a", "", "call_1_2", 60},
		{"empty channel", "a", "s", "", 60},
		{"zero ttl", "a", "s", "call_1_2", 0},
		{"negative ttl", "a", "s", "call_1_2", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildToken(tc.appID, tc.secret, tc.channel, 1, tc.ttl, false)
			assert.Error(t, err)
		})
	}
}
