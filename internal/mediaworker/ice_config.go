package mediaworker

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
)

const minCredentialTTL = 5 * time.Minute

// turnCredentials are short-lived HMAC-SHA1 REST credentials (RFC 5766
// "TURN REST API" convention), adapted from the teacher's
// ICECredentialsProvider: username is "<expiry-unix>:<clientId>", password
// is base64(HMAC-SHA1(turnSecret, username)).
type turnCredentials struct {
	Username  string
	Password  string
	ExpiresAt time.Time
}

func mintTURNCredentials(turnSecret, clientID string, ttl time.Duration) turnCredentials {
	if ttl < minCredentialTTL {
		ttl = minCredentialTTL
	}
	expiresAt := time.Now().UTC().Add(ttl)
	username := fmt.Sprintf("%d:%s", expiresAt.Unix(), clientID)

	mac := hmac.New(sha1.New, []byte(turnSecret))
	_, _ = mac.Write([]byte(username))
	password := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return turnCredentials{Username: username, Password: password, ExpiresAt: expiresAt}
}

// iceServers builds the ICEServer list handed to the ICE gatherer: STUN
// always, TURN only when MEDIA_TURN_HOST/MEDIA_TURN_SECRET are configured.
func (w *Worker) iceServers(clientID string) []webrtc.ICEServer {
	servers := []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

	if w.cfg.TURNHost == "" || w.cfg.TURNSecret == "" {
		return servers
	}
	creds := mintTURNCredentials(w.cfg.TURNSecret, clientID, w.cfg.TURNCredentialTTL)
	servers = append(servers, webrtc.ICEServer{
		URLs: []string{
			"turn:" + w.cfg.TURNHost + "?transport=udp",
			"turn:" + w.cfg.TURNHost + "?transport=tcp",
		},
		Username:   creds.Username,
		Credential: creds.Password,
	})
	return servers
}
