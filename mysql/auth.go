package mysql

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"

	jerrors "github.com/juju/errors"

	"github.com/zhukovaskychina/xmysql-client-core/util"
)

// initialAuthResponse computes the auth response sent inside
// HandshakeResponse41, for the given plugin, password and server nonce
// (spec §4.3 step 5). mysql_native_password gets the SHA1 scramble;
// caching_sha2_password gets SHA256(pw) XOR SHA256(SHA256(SHA256(pw)) +
// nonce), which the server checks on its fast path before falling back
// to the full exchange in §4.3.2.
func initialAuthResponse(plugin string, password []byte, nonce []byte) []byte {
	if len(password) == 0 {
		return nil
	}
	if plugin == "caching_sha2_password" {
		stage1 := sha256.Sum256(password)
		stage2 := sha256.Sum256(stage1[:])
		h := sha256.New()
		h.Write(stage2[:])
		h.Write(nonce)
		stage3 := h.Sum(nil)
		out := make([]byte, len(stage1))
		for i := range stage1 {
			out[i] = stage1[i] ^ stage3[i]
		}
		return out
	}
	return util.ScrambleNativePassword(password, nonce)
}

// authFlow runs the plugin completion protocol after HandshakeResponse41
// has been written (spec §4.3.1 / §4.3.2), returning once a final OK has
// been read or an error (including an ERR packet) has occurred.
type authFlow struct {
	codec    *packetCodec
	tr       *transport
	opts     *Options
	switched bool
}

// run drives whichever plugin the server first names; auth-switch may
// occur at most once across both plugin flows.
func (f *authFlow) run(plugin string, nonce []byte) error {
	payload, err := f.codec.readPacket()
	if err != nil {
		return err
	}
	return f.handle(plugin, nonce, payload)
}

func (f *authFlow) handle(plugin string, nonce []byte, payload []byte) error {
	if len(payload) == 0 {
		return protoErr(ErrUnexpectedPacket, "empty auth response packet")
	}

	switch payload[0] {
	case tagOK:
		_, err := parseOKPacket(payload)
		return err
	case tagErr:
		return parseErrPacket(payload)
	case authSwitchRequest:
		return f.handleAuthSwitch(payload)
	case authMoreData:
		return f.handleMoreData(plugin, nonce, payload)
	default:
		return protoErr(ErrUnexpectedPacket, "unexpected byte 0x%02x in auth response", payload[0])
	}
}

func (f *authFlow) handleAuthSwitch(payload []byte) error {
	if f.switched {
		return protoErr(ErrUnexpectedPacket, "second auth-switch request on one connection")
	}
	f.switched = true

	cursor := 1
	var nameRaw []byte
	cursor, nameRaw = util.ReadWithNull(payload, cursor)
	newPlugin, err := negotiatedAuthPlugin(string(nameRaw))
	if err != nil {
		return err
	}
	newNonce := trimTrailingNull(payload[cursor:])

	resp := initialAuthResponse(newPlugin, []byte(f.opts.Password), newNonce)
	if err := f.codec.writePacket(resp); err != nil {
		return err
	}

	next, err := f.codec.readPacket()
	if err != nil {
		return err
	}
	return f.handle(newPlugin, newNonce, next)
}

// handleMoreData implements spec §4.3.2's 0x01-prefixed sub-messages
// for caching_sha2_password.
func (f *authFlow) handleMoreData(plugin string, nonce []byte, payload []byte) error {
	if len(payload) < 2 {
		return protoErr(ErrUnexpectedPacket, "truncated auth-more-data packet")
	}

	switch payload[1] {
	case cachingSHA2FastAuthSuccess:
		next, err := f.codec.readPacket()
		if err != nil {
			return err
		}
		return f.handle(plugin, nonce, next)

	case cachingSHA2FullAuthRequired:
		if err := f.sendFullAuth(nonce); err != nil {
			return err
		}
		next, err := f.codec.readPacket()
		if err != nil {
			return err
		}
		return f.handle(plugin, nonce, next)

	default:
		return protoErr(ErrUnexpectedPacket, "unexpected auth-more-data sub-code 0x%02x", payload[1])
	}
}

// sendFullAuth implements the cleartext-or-RSA branch of §4.3.2.
func (f *authFlow) sendFullAuth(nonce []byte) error {
	password := append([]byte(f.opts.Password), 0)

	if !f.tr.isInsecure() || f.tr.isSocketTransport() {
		return f.codec.writePacket(password)
	}

	if err := f.codec.writePacket([]byte{0x02}); err != nil {
		return err
	}
	keyPacket, err := f.codec.readPacket()
	if err != nil {
		return err
	}
	pubKey, err := parseRSAPublicKey(keyPacket)
	if err != nil {
		return err
	}

	xored := xorWithNonce(password, nonce)
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pubKey, xored, nil)
	if err != nil {
		return jerrors.Annotate(err, "RSA-OAEP encrypting password")
	}
	return f.codec.writePacket(ciphertext)
}

func xorWithNonce(password []byte, nonce []byte) []byte {
	if len(nonce) == 0 {
		return password
	}
	out := make([]byte, len(password))
	for i, b := range password {
		out[i] = b ^ nonce[i%len(nonce)]
	}
	return out
}

// parseRSAPublicKey extracts a PEM-encoded RSA public key from a
// server's public-key response packet (the 0x01-tag byte is skipped
// when present, since some servers prefix it like auth-more-data).
func parseRSAPublicKey(payload []byte) (*rsa.PublicKey, error) {
	if len(payload) > 0 && payload[0] == authMoreData {
		payload = payload[1:]
	}
	block, _ := pem.Decode(payload)
	if block == nil {
		return nil, protoErr(ErrSetupError, "server RSA public key response was not PEM-encoded")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, jerrors.Annotate(err, "parsing server RSA public key")
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, protoErr(ErrSetupError, "server public key was not RSA")
	}
	return rsaPub, nil
}
