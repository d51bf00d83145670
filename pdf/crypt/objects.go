package crypt

import (
	"fmt"

	"github.com/georgepadayatti/pdfstamp/pdf/generic"
)

// FromDictionary builds a handler from an /Encrypt dictionary. fileID is
// the first element of the trailer /ID. The handler is not yet
// authenticated.
func FromDictionary(dict *generic.DictionaryObject, fileID []byte) (*StandardSecurityHandler, error) {
	if filter := dict.GetName("Filter"); filter != "Standard" {
		return nil, fmt.Errorf("%w: security handler /%s", ErrUnsupportedCrypt, filter)
	}
	v, _ := dict.GetInt("V")
	r, _ := dict.GetInt("R")
	p, _ := dict.GetInt("P")
	h := &StandardSecurityHandler{
		Version:         EncryptionVersion(v),
		Revision:        EncryptionRevision(r),
		KeyLength:       5,
		Permissions:     Permissions(uint32(p)),
		OwnerKey:        stringValue(dict.Get("O")),
		UserKey:         stringValue(dict.Get("U")),
		OwnerE:          stringValue(dict.Get("OE")),
		UserE:           stringValue(dict.Get("UE")),
		Perms:           stringValue(dict.Get("Perms")),
		FileID:          fileID,
		EncryptMetadata: true,
		StreamMethod:    MethodRC4,
		StringMethod:    MethodRC4,
	}
	if b, ok := dict.Get("EncryptMetadata").(generic.BooleanObject); ok {
		h.EncryptMetadata = bool(b)
	}
	if bits, ok := dict.GetInt("Length"); ok && bits >= 40 {
		h.KeyLength = int(bits / 8)
	}

	switch h.Version {
	case EncryptionV1:
		h.KeyLength = 5
	case EncryptionV2:
	case EncryptionV4, EncryptionV5:
		cf := dict.GetDict("CF")
		var err error
		if h.StreamMethod, err = filterMethod(cf, dict.GetName("StmF")); err != nil {
			return nil, err
		}
		if h.StringMethod, err = filterMethod(cf, dict.GetName("StrF")); err != nil {
			return nil, err
		}
		if h.Version == EncryptionV5 {
			h.KeyLength = 32
		} else if h.StreamMethod == MethodAESV2 || h.StringMethod == MethodAESV2 {
			h.KeyLength = 16
		}
	default:
		return nil, fmt.Errorf("%w: /V %d", ErrUnsupportedCrypt, v)
	}

	switch h.Revision {
	case RevisionR2, RevisionR3, RevisionR4:
		if len(h.OwnerKey) < 32 || len(h.UserKey) < 32 {
			return nil, fmt.Errorf("%w: /O and /U need 32 bytes", ErrUnsupportedCrypt)
		}
	case RevisionR5, RevisionR6:
		if len(h.OwnerKey) < 48 || len(h.UserKey) < 48 || len(h.UserE) != 32 || len(h.OwnerE) != 32 {
			return nil, fmt.Errorf("%w: incomplete AES-256 keys", ErrUnsupportedCrypt)
		}
	default:
		return nil, fmt.Errorf("%w: /R %d", ErrUnsupportedCrypt, r)
	}
	return h, nil
}

func filterMethod(cf *generic.DictionaryObject, name string) (Method, error) {
	if name == "" || name == "Identity" {
		return MethodIdentity, nil
	}
	var f *generic.DictionaryObject
	if cf != nil {
		f = cf.GetDict(name)
	}
	if f == nil {
		return 0, fmt.Errorf("%w: crypt filter /%s not defined", ErrUnsupportedCrypt, name)
	}
	switch cfm := f.GetName("CFM"); cfm {
	case "None", "":
		return MethodIdentity, nil
	case "V2":
		return MethodRC4, nil
	case "AESV2":
		return MethodAESV2, nil
	case "AESV3":
		return MethodAESV3, nil
	default:
		return 0, fmt.Errorf("%w: crypt filter method /%s", ErrUnsupportedCrypt, cfm)
	}
}

func stringValue(obj generic.PdfObject) []byte {
	if s, ok := obj.(*generic.StringObject); ok {
		return s.Value
	}
	return nil
}

// Dictionary renders the handler as an /Encrypt dictionary.
func (h *StandardSecurityHandler) Dictionary() *generic.DictionaryObject {
	d := generic.NewDictionary()
	d.Set("Filter", generic.NameObject("Standard"))
	d.Set("V", generic.IntegerObject(h.Version))
	d.Set("R", generic.IntegerObject(h.Revision))
	d.Set("Length", generic.IntegerObject(h.keyLength()*8))
	d.Set("P", generic.IntegerObject(int32(h.Permissions)))
	d.Set("O", generic.NewHexString(h.OwnerKey))
	d.Set("U", generic.NewHexString(h.UserKey))
	if h.Revision >= RevisionR5 {
		d.Set("Length", generic.IntegerObject(256))
		d.Set("OE", generic.NewHexString(h.OwnerE))
		d.Set("UE", generic.NewHexString(h.UserE))
		d.Set("Perms", generic.NewHexString(h.Perms))
	}
	if h.Version >= EncryptionV4 {
		cfm := map[Method]string{MethodRC4: "V2", MethodAESV2: "AESV2", MethodAESV3: "AESV3"}[h.StreamMethod]
		std := generic.NewDictionary()
		std.Set("Type", generic.NameObject("CryptFilter"))
		std.Set("CFM", generic.NameObject(cfm))
		std.Set("AuthEvent", generic.NameObject("DocOpen"))
		std.Set("Length", generic.IntegerObject(h.keyLength()))
		if h.Revision >= RevisionR5 {
			std.Set("Length", generic.IntegerObject(32))
		}
		cf := generic.NewDictionary()
		cf.Set("StdCF", std)
		d.Set("CF", cf)
		d.Set("StmF", generic.NameObject("StdCF"))
		d.Set("StrF", generic.NameObject("StdCF"))
		if !h.EncryptMetadata {
			d.Set("EncryptMetadata", generic.BooleanObject(false))
		}
	}
	return d
}

// skipStream reports whether a stream is stored unencrypted: xref
// streams, streams with their own /Crypt filter, and metadata when
// /EncryptMetadata is false.
func (h *StandardSecurityHandler) skipStream(dict *generic.DictionaryObject) bool {
	switch dict.GetName("Type") {
	case "XRef":
		return true
	case "Metadata":
		if !h.EncryptMetadata {
			return true
		}
	}
	if dict.GetName("Filter") == "Crypt" {
		return true
	}
	if arr := dict.GetArray("Filter"); len(arr) > 0 && arr[0] == generic.NameObject("Crypt") {
		return true
	}
	return false
}

// DecryptObject decrypts the strings and stream data of obj in place.
// obj is the value of indirect object num gen.
func (h *StandardSecurityHandler) DecryptObject(obj generic.PdfObject, num, gen int) error {
	return h.walk(obj, num, gen, h.DecryptString, h.DecryptStream)
}

// EncryptObject returns an encrypted copy of obj, leaving obj unchanged.
func (h *StandardSecurityHandler) EncryptObject(obj generic.PdfObject, num, gen int) (generic.PdfObject, error) {
	c := obj.Clone()
	if err := h.walk(c, num, gen, h.EncryptString, h.EncryptStream); err != nil {
		return nil, err
	}
	return c, nil
}

type cryptFunc func(data []byte, num, gen int) ([]byte, error)

func (h *StandardSecurityHandler) walk(obj generic.PdfObject, num, gen int, str, stm cryptFunc) error {
	switch v := obj.(type) {
	case *generic.StringObject:
		out, err := str(v.Value, num, gen)
		if err != nil {
			return fmt.Errorf("object %d: %w", num, err)
		}
		v.Value = out
	case generic.ArrayObject:
		for _, item := range v {
			if err := h.walk(item, num, gen, str, stm); err != nil {
				return err
			}
		}
	case *generic.DictionaryObject:
		for _, key := range v.Keys() {
			if err := h.walk(v.Get(key), num, gen, str, stm); err != nil {
				return err
			}
		}
	case *generic.StreamObject:
		if err := h.walk(v.Dictionary, num, gen, str, stm); err != nil {
			return err
		}
		if h.skipStream(v.Dictionary) {
			return nil
		}
		out, err := stm(v.Data, num, gen)
		if err != nil {
			return fmt.Errorf("object %d stream: %w", num, err)
		}
		v.Data = out
		v.Decoded = nil
	}
	return nil
}
