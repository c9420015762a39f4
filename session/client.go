package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/cloudmega/megasdk"
	"github.com/cloudmega/megasdk/cryptoprim"
	"github.com/cloudmega/megasdk/transport"
)

// Client drives the login/disconnect/logout lifecycle against one
// transport.Pipeline, optionally persisting sessions through Storage.
type Client struct {
	pipeline *transport.Pipeline
	storage  Storage
	logger   *log.Logger

	mu      sync.RWMutex
	current *Snapshot
}

// NewClient builds a Client. storage may be nil, in which case sessions
// are held in memory only (Login succeeds but nothing survives process
// exit). logger may be nil.
func NewClient(pipeline *transport.Pipeline, storage Storage, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{pipeline: pipeline, storage: storage, logger: logger}
}

// Current returns the active session, if Login or Restore has
// succeeded and Disconnect/Logout has not run since.
func (c *Client) Current() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return Snapshot{}, false
	}
	return *c.current, true
}

type us0Response struct {
	Salt    string `json:"s"`
	Version int    `json:"v"`
}

type usResponse struct {
	PrivateKey string `json:"privk"`
	CSID       string `json:"csid"`
}

type ugResponse struct {
	UserID string `json:"u"`
	Name   string `json:"name"`
}

// sessionIDLen is the number of leading base64url characters of the
// decrypted challenge that form the session id (spec.md §4.9).
const sessionIDLen = 43

// Login runs the full us0 -> derive -> us -> decrypt flow (spec.md
// §4.9), stores the result under sessionName if Storage is configured,
// and arms the pipeline with the resulting session id.
func (c *Client) Login(ctx context.Context, sessionName, email, password string) (Snapshot, error) {
	us0Raw, err := c.pipeline.SendImmediate(ctx, map[string]any{"a": "us0", "user": email})
	if err != nil {
		return Snapshot{}, err
	}
	var us0 us0Response
	if err := json.Unmarshal(us0Raw, &us0); err != nil {
		return Snapshot{}, mega.E("session.Login", mega.KindProtocol, fmt.Errorf("decode us0: %w", err))
	}

	masterKey, loginHash, err := deriveLoginKeys(us0, email, password)
	if err != nil {
		return Snapshot{}, err
	}

	usRaw, err := c.pipeline.SendImmediate(ctx, map[string]any{
		"a":    "us",
		"user": email,
		"uh":   cryptoprim.Base64URLEncode(loginHash),
	})
	if err != nil {
		return Snapshot{}, err
	}
	var us usResponse
	if err := json.Unmarshal(usRaw, &us); err != nil {
		return Snapshot{}, mega.E("session.Login", mega.KindProtocol, fmt.Errorf("decode us: %w", err))
	}

	privkRaw, sessionID, err := decryptSessionMaterial(masterKey, us.PrivateKey, us.CSID)
	if err != nil {
		return Snapshot{}, err
	}

	c.pipeline.SetSessionID(sessionID)

	var userID, userName string
	if ugRaw, err := c.pipeline.SendImmediate(ctx, map[string]any{"a": "ug"}); err == nil {
		var ug ugResponse
		if jsonErr := json.Unmarshal(ugRaw, &ug); jsonErr == nil {
			userID, userName = ug.UserID, ug.Name
		}
	} else {
		c.logger.Printf("session: ug after login failed, leaving user_id/user_name empty: %v", err)
	}

	now := time.Now().Unix()
	snap := Snapshot{
		SessionID:  sessionID,
		Email:      email,
		UserID:     userID,
		UserName:   userName,
		MasterKey:  masterKey,
		PrivateKey: privkRaw,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	c.mu.Lock()
	c.current = &snap
	c.mu.Unlock()

	if c.storage != nil {
		if err := c.storage.Save(sessionName, snap); err != nil {
			return Snapshot{}, mega.E("session.Login", mega.KindTransient, fmt.Errorf("persist session %q: %w", sessionName, err))
		}
	}
	return snap, nil
}

// Restore loads a previously persisted session and arms the pipeline
// with its session id, without contacting the server.
func (c *Client) Restore(sessionName string) (Snapshot, error) {
	if c.storage == nil {
		return Snapshot{}, mega.E("session.Restore", mega.KindArgument, fmt.Errorf("session: no storage configured"))
	}
	snap, err := c.storage.Load(sessionName)
	if err != nil {
		return Snapshot{}, mega.E("session.Restore", mega.KindNotFound, err)
	}

	c.pipeline.SetSessionID(snap.SessionID)
	c.mu.Lock()
	c.current = &snap
	c.mu.Unlock()
	return snap, nil
}

// Disconnect drops in-memory transport state (the pipeline forgets the
// session id) but leaves anything in Storage untouched, per spec.md
// §4.9 — a subsequent Restore can pick the same session back up.
func (c *Client) Disconnect() {
	c.pipeline.SetSessionID("")
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

// Logout does what Disconnect does and additionally deletes the stored
// session, per spec.md §4.9.
func (c *Client) Logout(sessionName string) error {
	c.Disconnect()
	if c.storage == nil {
		return nil
	}
	if err := c.storage.Delete(sessionName); err != nil {
		return mega.E("session.Logout", mega.KindTransient, err)
	}
	return nil
}

// deriveLoginKeys picks the v1 or v2 key-derivation path based on the
// account version us0 reported (spec.md §4.9).
func deriveLoginKeys(us0 us0Response, email, password string) (masterKey, loginHash []byte, err error) {
	switch us0.Version {
	case 0, 1:
		passKey := cryptoprim.V1PasswordKey(password)
		hash, err := cryptoprim.V1LoginHash(email, passKey)
		if err != nil {
			return nil, nil, mega.E("session.Login", mega.KindCrypto, fmt.Errorf("v1 login hash: %w", err))
		}
		return passKey, hash, nil
	case 2:
		salt, err := cryptoprim.Base64URLDecode(us0.Salt)
		if err != nil {
			return nil, nil, mega.E("session.Login", mega.KindProtocol, fmt.Errorf("decode v2 salt: %w", err))
		}
		mk, ak := cryptoprim.V2Derive(password, salt)
		return mk, ak, nil
	default:
		return nil, nil, mega.E("session.Login", mega.KindProtocol, fmt.Errorf("unsupported account version %d", us0.Version))
	}
}

// decryptSessionMaterial implements spec.md §4.9's "receive encrypted
// session + encrypted RSA privk -> decrypt privk with MasterKey (AES-ECB
// over the key halves) -> decrypt session challenge with RSA privk ->
// SessionId = first 43 characters of base64url of the decrypted
// challenge" chain.
func decryptSessionMaterial(masterKey []byte, privkB64, csidB64 string) (privkRaw []byte, sessionID string, err error) {
	privkBlob, err := cryptoprim.Base64URLDecode(privkB64)
	if err != nil {
		return nil, "", mega.E("session.Login", mega.KindProtocol, fmt.Errorf("decode privk: %w", err))
	}
	privkRaw, err = cryptoprim.ECBDecryptRun(masterKey, privkBlob)
	if err != nil {
		return nil, "", mega.E("session.Login", mega.KindCrypto, fmt.Errorf("decrypt privk: %w", err))
	}
	privKey, err := cryptoprim.ParsePrivateKey(privkRaw)
	if err != nil {
		return nil, "", mega.E("session.Login", mega.KindCrypto, fmt.Errorf("parse privk: %w", err))
	}

	csidRaw, err := cryptoprim.Base64URLDecode(csidB64)
	if err != nil {
		return nil, "", mega.E("session.Login", mega.KindProtocol, fmt.Errorf("decode csid: %w", err))
	}
	challengeCipher, _, err := cryptoprim.ReadMPI(csidRaw)
	if err != nil {
		return nil, "", mega.E("session.Login", mega.KindProtocol, fmt.Errorf("csid MPI: %w", err))
	}

	challenge := privKey.Decrypt(challengeCipher.Bytes())
	sessionID = cryptoprim.Base64URLEncode(challenge)
	if len(sessionID) > sessionIDLen {
		sessionID = sessionID[:sessionIDLen]
	}
	return privkRaw, sessionID, nil
}
