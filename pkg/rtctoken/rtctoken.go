// Package rtctoken builds short-lived access tokens for the media relay.
// A token binds a channel name, a numeric participant id and a privilege
// set into an HMAC-SHA256 signed blob the relay SDK can verify offline.
package rtctoken

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// Version tags the token wire format. The relay rejects unknown versions.
const Version = "006"

// Privilege is a capability bit embedded in a token.
type Privilege uint16

const (
	PrivilegeJoinChannel  Privilege = 1
	PrivilegePublishAudio Privilege = 2
	PrivilegePublishVideo Privilege = 3
	PrivilegePublishData  Privilege = 4
)

// PrivilegeGrant pairs a privilege with its own expiry timestamp.
type PrivilegeGrant struct {
	Privilege Privilege
	ExpireTs  uint32
}

// BuildToken mints a token for uid to join channelName, valid for ttlSeconds
// from now. Publishers additionally receive audio/video/data publish
// privileges, all expiring together with the join privilege.
//
// The binary body is: length-prefixed signature, issue timestamp, expire
// timestamp, salt, then the privilege list. Lengths, counts and privilege
// ids are big-endian uint16; timestamps and the salt are big-endian uint32.
func BuildToken(appID, appSecret, channelName string, uid uint32, ttlSeconds int, isPublisher bool) (string, error) {
	return buildTokenAt(appID, appSecret, channelName, uid, ttlSeconds, isPublisher, nowUnix(), randomSalt())
}

func buildTokenAt(appID, appSecret, channelName string, uid uint32, ttlSeconds int, isPublisher bool, issueTs, salt uint32) (string, error) {
	if appID == "" {
		return "", fmt.Errorf("app id must not be empty")
	}
	if appSecret == "" {
		return "", fmt.Errorf("app secret must not be empty")
	}
	if channelName == "" {
		return "", fmt.Errorf("channel name must not be empty")
	}
	if ttlSeconds <= 0 {
		return "", fmt.Errorf("ttl must be > 0")
	}

	expireTs := issueTs + uint32(ttlSeconds)

	message := fmt.Sprintf("%s%s%s%d%d%d%d", appSecret, appID, channelName, uid, issueTs, expireTs, salt)
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write([]byte(message))
	signature := mac.Sum(nil)

	grants := []PrivilegeGrant{{PrivilegeJoinChannel, expireTs}}
	if isPublisher {
		grants = append(grants,
			PrivilegeGrant{PrivilegePublishAudio, expireTs},
			PrivilegeGrant{PrivilegePublishVideo, expireTs},
			PrivilegeGrant{PrivilegePublishData, expireTs},
		)
	}

	body := packBody(signature, issueTs, expireTs, salt, grants)
	return Version + appID + base64.StdEncoding.EncodeToString(body), nil
}

func packBody(signature []byte, issueTs, expireTs, salt uint32, grants []PrivilegeGrant) []byte {
	var buf bytes.Buffer

	binary.Write(&buf, binary.BigEndian, uint16(len(signature)))
	buf.Write(signature)
	binary.Write(&buf, binary.BigEndian, issueTs)
	binary.Write(&buf, binary.BigEndian, expireTs)
	binary.Write(&buf, binary.BigEndian, salt)

	binary.Write(&buf, binary.BigEndian, uint16(len(grants)))
	for _, g := range grants {
		binary.Write(&buf, binary.BigEndian, uint16(g.Privilege))
		binary.Write(&buf, binary.BigEndian, g.ExpireTs)
	}

	return buf.Bytes()
}

func nowUnix() uint32 {
	return uint32(time.Now().Unix())
}

func randomSalt() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing means the process has bigger problems; a
		// zero salt still yields a valid, verifiable token.
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}
