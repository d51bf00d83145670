package crypt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/georgepadayatti/pdfstamp/pdf/generic"
)

var testFileID = []byte("0123456789abcdef")

var methods = []Method{MethodRC4, MethodAESV2, MethodAESV3}

// reopen parses the dictionary of h as a reader would.
func reopen(t *testing.T, h *StandardSecurityHandler) *StandardSecurityHandler {
	t.Helper()
	parsed, err := FromDictionary(h.Dictionary(), testFileID)
	if err != nil {
		t.Fatalf("FromDictionary failed: %v", err)
	}
	return parsed
}

func TestAuthenticateEmptyUserPassword(t *testing.T) {
	for _, method := range methods {
		t.Run(method.String(), func(t *testing.T) {
			h, err := NewStandardSecurityHandler(method, "", "owner", PermPrint, testFileID)
			if err != nil {
				t.Fatalf("NewStandardSecurityHandler failed: %v", err)
			}
			parsed := reopen(t, h)
			if parsed.Authenticated() {
				t.Fatal("Expected unauthenticated handler")
			}
			if err := parsed.Authenticate(""); err != nil {
				t.Fatalf("Expected empty password to open file, got %v", err)
			}
			if parsed.OwnerAuthenticated() {
				t.Error("Expected user authentication")
			}
			if !bytes.Equal(parsed.key, h.key) {
				t.Errorf("Expected key %x, got %x", h.key, parsed.key)
			}
			if parsed.Permissions.Has(PermModify) {
				t.Errorf("Expected modify bit clear in %032b", parsed.Permissions)
			}

			owner := reopen(t, h)
			if err := owner.Authenticate("owner"); err != nil {
				t.Fatalf("Expected owner password to open file, got %v", err)
			}
			if !owner.OwnerAuthenticated() || !bytes.Equal(owner.key, h.key) {
				t.Errorf("Expected owner authentication with key %x, got %x", h.key, owner.key)
			}
		})
	}
}

func TestAuthenticateUserPassword(t *testing.T) {
	for _, method := range methods {
		t.Run(method.String(), func(t *testing.T) {
			h, err := NewStandardSecurityHandler(method, "secret", "", 0, testFileID)
			if err != nil {
				t.Fatalf("NewStandardSecurityHandler failed: %v", err)
			}
			parsed := reopen(t, h)
			if err := parsed.Authenticate(""); !errors.Is(err, ErrInvalidPassword) {
				t.Errorf("Expected ErrInvalidPassword, got %v", err)
			}
			if _, err := parsed.DecryptString([]byte("x"), 1, 0); !errors.Is(err, ErrInvalidPassword) {
				t.Errorf("Expected ErrInvalidPassword before authentication, got %v", err)
			}
			if err := parsed.Authenticate("secret"); err != nil {
				t.Errorf("Expected user password to open file, got %v", err)
			}
		})
	}
}

func TestRevision2(t *testing.T) {
	h := &StandardSecurityHandler{
		Version:         EncryptionV1,
		Revision:        RevisionR2,
		KeyLength:       5,
		Permissions:     PermPrint | PermCopy,
		FileID:          testFileID,
		EncryptMetadata: true,
		StreamMethod:    MethodRC4,
		StringMethod:    MethodRC4,
	}
	upw := padPassword(nil)
	h.OwnerKey = h.computeOwnerKey(upw, padPassword([]byte("owner")))
	h.key = h.computeFileKey(upw)
	h.UserKey = h.computeUserKey(h.key)

	if len(h.key) != 5 || len(h.UserKey) != 32 {
		t.Fatalf("Expected 5-byte key and 32-byte /U, got %d and %d", len(h.key), len(h.UserKey))
	}
	parsed := reopen(t, h)
	if err := parsed.Authenticate(""); err != nil {
		t.Fatalf("Expected empty password to open file, got %v", err)
	}
	if got := parsed.Description(); got != "RC4 40-bit, R2" {
		t.Errorf("Expected RC4 40-bit, R2, got %s", got)
	}
	if err := reopen(t, h).Authenticate("owner"); err != nil {
		t.Errorf("Expected owner password to open file, got %v", err)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	plain := []byte("BT /F1 12 Tf (Hello) Tj ET")
	for _, method := range methods {
		t.Run(method.String(), func(t *testing.T) {
			h, err := NewStandardSecurityHandler(method, "", "", 0, testFileID)
			if err != nil {
				t.Fatalf("NewStandardSecurityHandler failed: %v", err)
			}
			enc, err := h.EncryptStream(plain, 7, 0)
			if err != nil {
				t.Fatalf("EncryptStream failed: %v", err)
			}
			if bytes.Contains(enc, []byte("Hello")) {
				t.Errorf("Expected ciphertext, got %q", enc)
			}
			dec, err := h.DecryptStream(enc, 7, 0)
			if err != nil {
				t.Fatalf("DecryptStream failed: %v", err)
			}
			if !bytes.Equal(dec, plain) {
				t.Errorf("Expected %q, got %q", plain, dec)
			}

			other, err := h.DecryptStream(enc, 8, 0)
			if method != MethodAESV3 && err == nil && bytes.Equal(other, plain) {
				t.Error("Expected object number to change the key")
			}
		})
	}
}

func TestDecryptAESErrors(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 16)
	if _, err := decryptAES(key, make([]byte, 20)); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Expected ErrDecryptionFailed for short data, got %v", err)
	}
	if _, err := decryptAES(key, make([]byte, 32)); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Expected ErrDecryptionFailed for bad padding, got %v", err)
	}
	if out, err := decryptAES(key, nil); err != nil || len(out) != 0 {
		t.Errorf("Expected empty result, got %q, %v", out, err)
	}
}

func TestEncryptObject(t *testing.T) {
	h, err := NewStandardSecurityHandler(MethodAESV2, "", "", 0, testFileID)
	if err != nil {
		t.Fatalf("NewStandardSecurityHandler failed: %v", err)
	}

	page := generic.NewDictionary()
	page.Set("Title", generic.NewLiteralString("Report"))
	page.Set("Kids", generic.NewArray(generic.NewLiteralString("kid"), generic.IntegerObject(3)))
	stream := generic.NewStream(nil, []byte("q Q"))
	xref := generic.NewStream(nil, []byte{1, 2, 3})
	xref.Dictionary.Set("Type", generic.NameObject("XRef"))
	own := generic.NewStream(nil, []byte("own"))
	own.Dictionary.Set("Filter", generic.NewArray(generic.NameObject("Crypt")))

	for _, obj := range []generic.PdfObject{page, stream} {
		enc, err := h.EncryptObject(obj, 4, 0)
		if err != nil {
			t.Fatalf("EncryptObject failed: %v", err)
		}
		if cmp.Equal(enc, obj, cmp.AllowUnexported(generic.DictionaryObject{})) {
			t.Errorf("Expected %v to change", obj)
		}
		if err := h.DecryptObject(enc, 4, 0); err != nil {
			t.Fatalf("DecryptObject failed: %v", err)
		}
		if diff := cmp.Diff(obj, enc, cmp.AllowUnexported(generic.DictionaryObject{})); diff != "" {
			t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
		}
	}
	if got := page.Get("Title").(*generic.StringObject).Text(); got != "Report" {
		t.Errorf("Expected original to stay unchanged, got %q", got)
	}

	for _, obj := range []*generic.StreamObject{xref, own} {
		enc, err := h.EncryptObject(obj, 5, 0)
		if err != nil {
			t.Fatalf("EncryptObject failed: %v", err)
		}
		if !bytes.Equal(enc.(*generic.StreamObject).Data, obj.Data) {
			t.Errorf("Expected %v data to stay plain", obj.Dictionary)
		}
	}
}

func TestFromDictionaryErrors(t *testing.T) {
	valid, err := NewStandardSecurityHandler(MethodAESV2, "", "", 0, testFileID)
	if err != nil {
		t.Fatalf("NewStandardSecurityHandler failed: %v", err)
	}
	tests := []struct {
		name   string
		modify func(d *generic.DictionaryObject)
	}{
		{"public key", func(d *generic.DictionaryObject) { d.Set("Filter", generic.NameObject("Adobe.PubSec")) }},
		{"no version", func(d *generic.DictionaryObject) { d.Delete("V") }},
		{"bad revision", func(d *generic.DictionaryObject) { d.Set("R", generic.IntegerObject(9)) }},
		{"short keys", func(d *generic.DictionaryObject) { d.Set("U", generic.NewHexString([]byte("x"))) }},
		{"missing filter", func(d *generic.DictionaryObject) { d.Set("StmF", generic.NameObject("Other")) }},
		{"unknown method", func(d *generic.DictionaryObject) {
			d.GetDict("CF").GetDict("StdCF").Set("CFM", generic.NameObject("ROT13"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid.Dictionary()
			tt.modify(d)
			if _, err := FromDictionary(d, testFileID); !errors.Is(err, ErrUnsupportedCrypt) {
				t.Errorf("Expected ErrUnsupportedCrypt, got %v", err)
			}
		})
	}
}

func TestDictionary(t *testing.T) {
	tests := []struct {
		method Method
		want   string
	}{
		{MethodRC4, "<< /Filter /Standard /V 2 /R 3 /Length 128 /P "},
		{MethodAESV2, "/CF << /StdCF << /Type /CryptFilter /CFM /AESV2 /AuthEvent /DocOpen /Length 16 >> >>"},
		{MethodAESV3, "/V 5 /R 6 /Length 256"},
	}
	for _, tt := range tests {
		h, err := NewStandardSecurityHandler(tt.method, "", "", 0, testFileID)
		if err != nil {
			t.Fatalf("NewStandardSecurityHandler failed: %v", err)
		}
		var buf bytes.Buffer
		if err := h.Dictionary().Write(&buf); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("Expected %q in %s", tt.want, buf.String())
		}
	}
}

func TestPrepPassword(t *testing.T) {
	got, err := prepPassword("I\u00adX")
	if err != nil {
		t.Fatalf("prepPassword failed: %v", err)
	}
	if string(got) != "IX" {
		t.Errorf("Expected IX, got %q", got)
	}
	if long, _ := prepPassword(strings.Repeat("a", 200)); len(long) != 127 {
		t.Errorf("Expected 127 bytes, got %d", len(long))
	}
	if _, err := prepPassword("\u0007"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("Expected ErrInvalidPassword, got %v", err)
	}
}

func TestNewStandardSecurityHandlerIdentity(t *testing.T) {
	if _, err := NewStandardSecurityHandler(MethodIdentity, "", "", 0, testFileID); !errors.Is(err, ErrUnsupportedCrypt) {
		t.Errorf("Expected ErrUnsupportedCrypt, got %v", err)
	}
}
