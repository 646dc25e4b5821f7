package server

import (
	"io"
	"log"
	"net"
	"time"

	"github.com/raida-net/coinnode/internal/dispatch"
	"github.com/raida-net/coinnode/internal/handler"
	"github.com/raida-net/coinnode/internal/protocol"
	"github.com/raida-net/coinnode/internal/wire"
)

// ServeOne runs exactly one request/response exchange on conn: read the
// header, read and decrypt the body, dispatch to a handler, encrypt and
// write the response. It returns a non-nil error only when the
// connection itself is unusable (read/write failure, EOF); a malformed
// or rejected request is a normal outcome reported via the response's
// status byte, not a returned error.
func ServeOne(conn net.Conn, table dispatch.Table, ctx *handler.Ctx, nodeID, coinID byte, logger *log.Logger) error {
	// A peer that never completes a header (e.g. a client speaking an
	// incompatible framing) must not pin a worker slot forever.
	_ = conn.SetReadDeadline(time.Now().Add(RequestReadTimeout))
	defer conn.SetReadDeadline(time.Time{})

	legacyPrefix := make([]byte, wire.LegacyHeaderSize)
	if _, err := io.ReadFull(conn, legacyPrefix); err != nil {
		return err
	}

	headerBuf := legacyPrefix
	if wire.EncType(legacyPrefix[16]).IsModern() {
		rest := make([]byte, wire.ModernHeaderSize-wire.LegacyHeaderSize)
		if _, err := io.ReadFull(conn, rest); err != nil {
			return err
		}
		headerBuf = append(headerBuf, rest...)
	}

	h, err := wire.ParseHeader(headerBuf)
	if err != nil {
		return writeFramingError(conn, nodeID, err)
	}
	if err := h.Validate(nodeID, coinID, protocol.MaxGroup); err != nil {
		return writeFramingError(conn, nodeID, err)
	}

	body := make([]byte, h.BodySize)
	if _, err := io.ReadFull(conn, body); err != nil {
		return err
	}

	ks := &keySource{store: ctx.Store, lockers: ctx.Lockers, tradeLockers: ctx.TradeLockers}
	key, derr := wire.DeriveKey(h, ks)
	if derr != nil {
		return writeFramingError(conn, nodeID, derr)
	}

	challenge, berr := wire.DecryptBody(h, body, key)
	if berr != nil {
		return writeFramingError(conn, nodeID, berr)
	}

	payload := wire.Payload(h, body)
	out := dispatch.Dispatch(table, ctx, h.Group, h.Command, payload)

	return writeResult(conn, h, nodeID, out, key, challenge, logger)
}

func writeFramingError(conn net.Conn, nodeID byte, err error) error {
	status := wire.Status(err)
	resp := wire.Response{NodeID: nodeID, Status: status}
	_, werr := conn.Write(resp.Marshal(true))
	if werr != nil {
		return werr
	}
	// A framing-level rejection is a successful exchange at the
	// connection level; spec.md §8 requires no handler be invoked, not
	// that the connection be torn down.
	return nil
}

func writeResult(conn net.Conn, h wire.Header, nodeID byte, out dispatch.Outcome, key, challenge []byte, logger *log.Logger) error {
	legacy := h.EncType.IsLegacy()
	body := append([]byte(nil), out.Result.Body...)
	body = append(body, wire.BodyTrailerByte0, wire.BodyTrailerByte1)

	resp := wire.Response{
		NodeID:     nodeID,
		Status:     out.Result.Status,
		Group:      h.Group,
		Command:    h.Command,
		BodySize:   uint16(len(body)),
		ExecMicros: uint32(out.Elapsed.Microseconds()),
	}

	var serverNonce []byte
	if legacy {
		resp.LegacyEcho = wire.LegacyEchoValue(challenge, key)
	} else {
		nonce, nerr := wire.NewServerNonce()
		if nerr != nil {
			return nerr
		}
		resp.ModernServerNonce = nonce
		serverNonce = nonce[:]
		if len(h.Nonce) >= 2 {
			copy(resp.ModernEcho[:], h.Nonce[len(h.Nonce)-2:])
		}
	}

	if err := wire.EncryptResponseBody(body, key, legacy, h.Nonce, serverNonce); err != nil {
		return err
	}

	if _, err := conn.Write(resp.Marshal(legacy)); err != nil {
		return err
	}
	if _, err := conn.Write(body); err != nil {
		return err
	}
	return nil
}
