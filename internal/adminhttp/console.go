package adminhttp

import (
	"net/http"

	"github.com/concord-chat/intercom-router/internal/apierr"
	"github.com/concord-chat/intercom-router/internal/security"
)

// Console guards the admin dashboard's local password login — a separate
// concern from the per-connection ADMIN_SECRET the signaling layer checks
// in adminAuthenticate. It exists so an operator can open the read-only
// dashboard from a browser without the shared secret appearing in a URL.
type Console struct {
	crypto       *security.CryptoManager
	passwordHash string
}

// NewConsole builds a Console whose single password is already argon2id
// hashed (see security.CryptoManager.HashPassword). An empty hash means no
// password is set — the login endpoint then always rejects, failing closed.
func NewConsole(passwordHash string) *Console {
	return &Console{crypto: security.NewCryptoManager(), passwordHash: passwordHash}
}

func (c *Console) verify(password string) error {
	if c.passwordHash == "" {
		return apierr.New(apierr.Unauthorized, "admin console login is not configured")
	}
	ok, err := c.crypto.VerifyPassword(password, c.passwordHash)
	if err != nil || !ok {
		return apierr.New(apierr.Unauthorized, "invalid admin console password")
	}
	return nil
}

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.console.verify(req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
