package keystore

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

var testParams = Params{N: 1 << 10, R: 8, P: 1}

func TestSealOpen(t *testing.T) {
	secret := []byte{0x01, 0x02, 0x03, 0x04}

	keyJSON, err := Seal(secret, []byte("operator-secret"), testParams)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if keyJSON.Crypto.Cipher != "aes-256-gcm" {
		t.Errorf("Expected cipher aes-256-gcm, got %s", keyJSON.Crypto.Cipher)
	}
	if keyJSON.Crypto.KDFParams.N != testParams.N {
		t.Errorf("KDF params not recorded: %+v", keyJSON.Crypto.KDFParams)
	}

	plaintext, err := Open(keyJSON, []byte("operator-secret"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(plaintext) != string(secret) {
		t.Errorf("Decryption mismatch")
	}

	if _, err := Open(keyJSON, []byte("wrong")); err != ErrMACMismatch {
		t.Errorf("Expected ErrMACMismatch, got %v", err)
	}
}

func TestSealUsesFreshSaltAndIV(t *testing.T) {
	a, err := Seal([]byte("same"), []byte("pw"), testParams)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Seal([]byte("same"), []byte("pw"), testParams)
	if err != nil {
		t.Fatal(err)
	}
	if a.Crypto.KDFParams.Salt == b.Crypto.KDFParams.Salt {
		t.Error("salt reused between two seals")
	}
	if a.Crypto.CipherParams.IV == b.Crypto.CipherParams.IV {
		t.Error("iv reused between two seals")
	}
}

func TestEncryptDecryptMnemonic(t *testing.T) {
	if testing.Short() {
		t.Skip("scrypt N=262144 is slow")
	}
	mnemonic := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

	keyJSON, err := EncryptMnemonic(mnemonic, "secure-password")
	if err != nil {
		t.Fatalf("Encryption failed: %v", err)
	}

	plaintext, err := DecryptMnemonic(keyJSON, "secure-password")
	if err != nil {
		t.Fatalf("Decryption failed: %v", err)
	}
	if plaintext != mnemonic {
		t.Errorf("Decryption mismatch. Expected %s, got %s", mnemonic, plaintext)
	}
}

func TestFileSaveLoad(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "operator.json")

	keyJSON, err := Seal([]byte("test mnemonic"), []byte("123456"), testParams)
	if err != nil {
		t.Fatal(err)
	}
	keyJSON.Address = "0xabc"

	if err := keyJSON.SaveToFile(filename); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(filename)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Id != keyJSON.Id || loaded.Address != "0xabc" {
		t.Errorf("metadata mismatch after load: %+v", loaded)
	}

	decrypted, err := Open(loaded, []byte("123456"))
	if err != nil {
		t.Fatalf("Decrypt loaded failed: %v", err)
	}
	if string(decrypted) != "test mnemonic" {
		t.Errorf("Content mismatch")
	}
}

func TestOpenRejectsUnknownCipher(t *testing.T) {
	keyJSON, _ := Seal([]byte("x"), []byte("pw"), testParams)
	raw, _ := json.Marshal(keyJSON)
	var tampered EncryptedKeyJSON
	_ = json.Unmarshal(raw, &tampered)
	tampered.Crypto.Cipher = "aes-128-ctr"
	if _, err := Open(&tampered, []byte("pw")); err == nil {
		t.Error("expected unsupported cipher error")
	}
}
