package constants

import "testing"

// TestConstants verifies constant values using table-driven tests.
func TestConstants(t *testing.T) {
	t.Run("KeySizes", testKeySizes)
	t.Run("ActSizes", testActSizes)
	t.Run("FrameSizes", testFrameSizes)
	t.Run("ProtocolFixtures", testProtocolFixtures)
}

func testKeySizes(t *testing.T) {
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"PrivateKeySize", PrivateKeySize, 32},
		{"PublicKeySize", PublicKeySize, 33},
		{"SharedSecretSize", SharedSecretSize, 32},
		{"KeySize", KeySize, 32},
		{"HashSize", HashSize, 32},
		{"NonceSize", NonceSize, 12},
		{"TagSize", TagSize, 16},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func testActSizes(t *testing.T) {
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"ActOneSize", ActOneSize, 50},
		{"ActTwoSize", ActTwoSize, 50},
		{"ActThreeSize", ActThreeSize, 66},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func testFrameSizes(t *testing.T) {
	if EncryptedHeaderSize != 18 {
		t.Errorf("EncryptedHeaderSize = %d, want 18", EncryptedHeaderSize)
	}
	if FrameOverhead != 34 {
		t.Errorf("FrameOverhead = %d, want 34", FrameOverhead)
	}
	if MaxMessageSize != 1<<16-1 {
		t.Errorf("MaxMessageSize = %d, want %d", MaxMessageSize, 1<<16-1)
	}
	if MaxPayloadSize+MessageTypeSize != MaxMessageSize {
		t.Error("MaxPayloadSize must leave room for the type prefix")
	}
	if KeyRotationInterval != 1000 {
		t.Errorf("KeyRotationInterval = %d, want 1000", KeyRotationInterval)
	}
	if DefaultMaxReadBuffer < MaxMessageSize+FrameOverhead {
		t.Error("DefaultMaxReadBuffer must hold a maximum frame")
	}
}

func testProtocolFixtures(t *testing.T) {
	if ProtocolName != "Noise_XK_secp256k1_ChaChaPoly_SHA256" {
		t.Errorf("ProtocolName = %q", ProtocolName)
	}
	if Prologue != "lightning" {
		t.Errorf("Prologue = %q", Prologue)
	}
	if HandshakeVersion != 0 {
		t.Errorf("HandshakeVersion = %d, want 0", HandshakeVersion)
	}
	if MaxPongBytes != 65531 {
		t.Errorf("MaxPongBytes = %d, want 65531", MaxPongBytes)
	}
}
