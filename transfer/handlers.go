package transfer

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"myshare/auth"
	appcrypto "myshare/crypto"
	"myshare/storage"
	"myshare/trust"
)

// Multipart field names of POST /upload.
const (
	fieldFile       = "file"
	fieldFilename   = "filename"
	fieldFileHash   = "file_hash"
	fieldNonce      = "nonce"
	fieldTimestamp  = "timestamp"
	fieldSenderID   = "sender_id"
	fieldSenderName = "sender_name"
	fieldReceiverID = "receiver_id"
	fieldSignature  = "signature"
	fieldPubkeyPEM  = "pubkey_pem"
)

const (
	eventContentHashMismatch = "content_hash_mismatch"
	eventTrustConflict       = "trust_conflict"
)

var requiredTextFields = []string{
	fieldFilename,
	fieldFileHash,
	fieldNonce,
	fieldTimestamp,
	fieldSenderID,
	fieldReceiverID,
	fieldSignature,
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-pem-file")
	_, _ = w.Write(s.identity.PublicKeyPEM())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(DefaultMaxMemory); err != nil {
		slog.Warn("upload rejected: malformed form", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "Malformed form", http.StatusBadRequest)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	fields := make(map[string]string, len(requiredTextFields))
	for _, name := range requiredTextFields {
		value := strings.TrimSpace(r.FormValue(name))
		if value == "" {
			http.Error(w, "Missing fields", http.StatusBadRequest)
			return
		}
		fields[name] = value
	}
	file, _, err := r.FormFile(fieldFile)
	if err != nil {
		http.Error(w, "Missing fields", http.StatusBadRequest)
		return
	}
	content, err := io.ReadAll(file)
	_ = file.Close()
	if err != nil {
		slog.Error("read uploaded file", "error", err)
		http.Error(w, "Unreadable file", http.StatusBadRequest)
		return
	}

	timestamp, err := strconv.ParseInt(fields[fieldTimestamp], 10, 64)
	if err != nil {
		http.Error(w, "Invalid timestamp", http.StatusBadRequest)
		return
	}

	token := auth.Token{
		FileHash:   fields[fieldFileHash],
		Nonce:      fields[fieldNonce],
		Timestamp:  timestamp,
		SenderID:   fields[fieldSenderID],
		ReceiverID: fields[fieldReceiverID],
		Signature:  fields[fieldSignature],
	}
	senderName := strings.TrimSpace(r.FormValue(fieldSenderName))
	log := slog.With("sender_id", token.SenderID, "remote", r.RemoteAddr)

	publicKey, trusted := s.trust.PublicKey(token.SenderID)
	if !trusted {
		publicKeyPEM := r.FormValue(fieldPubkeyPEM)
		if strings.TrimSpace(publicKeyPEM) == "" {
			log.Warn("upload rejected: unknown sender without public key")
			http.Error(w, "Sender not trusted and no pubkey provided", http.StatusForbidden)
			return
		}
		publicKey, err = appcrypto.ParsePublicKeyPEM([]byte(publicKeyPEM))
		if err != nil {
			log.Warn("upload rejected: unparseable public key", "error", err)
			s.recordSecurityEvent("invalid_public_key", token.SenderID, storage.SecuritySeverityWarning, nil)
			http.Error(w, "Invalid pubkey", http.StatusBadRequest)
			return
		}
	}

	if token.ReceiverID != s.identity.DeviceID {
		log.Warn("upload rejected: token issued for another receiver", "receiver_id", token.ReceiverID)
		s.recordSecurityEvent("receiver_mismatch", token.SenderID, storage.SecuritySeverityWarning, map[string]string{
			"receiver_id": token.ReceiverID,
		})
		http.Error(w, "Auth failed", http.StatusForbidden)
		return
	}

	if !strings.EqualFold(appcrypto.ContentHash(content), token.FileHash) {
		log.Warn("upload rejected: content does not match signed hash")
		s.recordSecurityEvent(eventContentHashMismatch, token.SenderID, storage.SecuritySeverityCritical, map[string]string{
			"file_hash": token.FileHash,
		})
		http.Error(w, "Auth failed", http.StatusForbidden)
		return
	}

	if err := s.verifier.Check(token, publicKey); err != nil {
		reason := auth.Reason(err)
		log.Warn("upload rejected: token verification failed", "reason", reason)
		s.recordSecurityEvent(reason, token.SenderID, severityFor(err), map[string]string{
			"nonce":   token.Nonce,
			"trusted": strconv.FormatBool(trusted),
		})
		http.Error(w, "Auth failed", http.StatusForbidden)
		return
	}

	if !trusted {
		if err := s.trust.AddIfAbsent(token.SenderID, senderName, publicKey); err != nil {
			if errors.Is(err, trust.ErrKeyConflict) {
				log.Warn("upload rejected: sender was pinned to another key during first contact")
				asserted := appcrypto.KeyFingerprint(publicKey)
				s.recordSecurityEvent(eventTrustConflict, token.SenderID, storage.SecuritySeverityCritical, map[string]string{
					"asserted_fingerprint": asserted,
				})
				s.recordRejectedKey(token.SenderID, asserted)
				http.Error(w, "Auth failed", http.StatusForbidden)
				return
			}
			log.Error("persist first-contact trust", "error", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
	}

	filename := SanitizeFilename(fields[fieldFilename])
	s.state.Set(ModeTransferring)
	location, err := s.sink.Store(r.Context(), filename, content)
	s.state.Set(ModeReceiveArmed)
	if err != nil {
		log.Error("store received file", "filename", filename, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if s.recorder != nil {
		if err := s.recorder.SaveReceivedFile(storage.ReceivedFile{
			FileID:         uuid.NewString(),
			SenderDeviceID: token.SenderID,
			Filename:       filename,
			StoredPath:     location,
			Filesize:       int64(len(content)),
			Checksum:       token.FileHash,
		}); err != nil {
			log.Warn("record received file", "error", err)
		}
	}

	log.Info("file received", "filename", filename, "bytes", len(content), "path", location, "first_contact", !trusted)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) recordSecurityEvent(eventType, peerDeviceID, severity string, details map[string]string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordSecurityEvent(eventType, peerDeviceID, severity, details); err != nil {
		slog.Warn("record security event", "event_type", eventType, "error", err)
	}
}

// recordRejectedKey logs a refused replacement of the pinned key for deviceID.
func (s *Server) recordRejectedKey(deviceID, assertedFingerprint string) {
	if s.recorder == nil {
		return
	}
	entry, ok := s.trust.Entry(deviceID)
	if !ok {
		return
	}
	if err := s.recorder.RecordKeyRotationEvent(storage.KeyRotationEvent{
		PeerDeviceID:      deviceID,
		OldKeyFingerprint: entry.Fingerprint,
		NewKeyFingerprint: assertedFingerprint,
		Decision:          storage.KeyRotationDecisionRejected,
	}); err != nil {
		slog.Warn("record rejected key rotation", "device_id", deviceID, "error", err)
	}
}

func severityFor(err error) string {
	if errors.Is(err, auth.ErrInvalidSignature) {
		return storage.SecuritySeverityCritical
	}
	return storage.SecuritySeverityWarning
}
