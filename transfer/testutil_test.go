package transfer

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"myshare/auth"
	appcrypto "myshare/crypto"
	"myshare/identity"
	"myshare/storage"
	"myshare/trust"
)

type testReceiver struct {
	identity    *identity.Identity
	store       *storage.Store
	trust       *trust.Store
	server      *Server
	incomingDir string
}

func newTestIdentity(t *testing.T) *identity.Identity {
	t.Helper()

	dir := t.TempDir()
	id, err := identity.LoadOrCreate(identity.Paths{
		DeviceIDPath:   filepath.Join(dir, "device_id.txt"),
		PrivateKeyPath: filepath.Join(dir, "keys", "ed25519_private.pem"),
		PublicKeyPath:  filepath.Join(dir, "keys", "ed25519_public.pem"),
		TLSCertPath:    filepath.Join(dir, "tls", "cert.pem"),
		TLSKeyPath:     filepath.Join(dir, "tls", "key.pem"),
	})
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	return id
}

func newTestReceiver(t *testing.T) *testReceiver {
	t.Helper()
	return newTestReceiverWithNonces(t, auth.NewMemoryNonceCache())
}

func newTestReceiverWithNonces(t *testing.T, nonces auth.NonceStore) *testReceiver {
	t.Helper()

	store, _, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close storage: %v", err)
		}
	})

	trustStore, err := trust.Load(store)
	if err != nil {
		t.Fatalf("load trust store: %v", err)
	}

	id := newTestIdentity(t)
	incomingDir := filepath.Join(t.TempDir(), "incoming")
	server, err := NewServer(Options{
		Identity: id,
		Trust:    trustStore,
		Verifier: auth.NewVerifier(nonces, auth.DefaultWindow),
		Sink:     NewDirSink(incomingDir),
		Recorder: store,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	return &testReceiver{
		identity:    id,
		store:       store,
		trust:       trustStore,
		server:      server,
		incomingDir: incomingDir,
	}
}

// signedUploadFields builds a complete, validly signed field set.
func signedUploadFields(t *testing.T, sender *identity.Identity, receiverID, filename string, content []byte) map[string]string {
	t.Helper()
	return signedUploadFieldsAs(t, sender, sender.DeviceID, receiverID, filename, content)
}

// signedUploadFieldsAs signs with signer's key while claiming senderID.
func signedUploadFieldsAs(t *testing.T, signer *identity.Identity, senderID, receiverID, filename string, content []byte) map[string]string {
	t.Helper()

	token, err := auth.NewIssuer(signer.PrivateKey).Issue(appcrypto.ContentHash(content), senderID, receiverID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return map[string]string{
		fieldFilename:   filename,
		fieldFileHash:   token.FileHash,
		fieldNonce:      token.Nonce,
		fieldTimestamp:  strconv.FormatInt(token.Timestamp, 10),
		fieldSenderID:   token.SenderID,
		fieldSenderName: "Sender Laptop",
		fieldReceiverID: token.ReceiverID,
		fieldSignature:  token.Signature,
		fieldPubkeyPEM:  string(signer.PublicKeyPEM()),
	}
}

func newUploadRequest(t *testing.T, fields map[string]string, content []byte, withFile bool) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if withFile {
		part, err := writer.CreateFormFile(fieldFile, "upload.bin")
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func (r *testReceiver) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.server.Handler().ServeHTTP(rec, req)
	return rec
}
