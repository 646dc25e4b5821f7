package handler

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"

	"github.com/raida-net/coinnode/internal/protocol"
)

// resolveSandboxPath joins name under ctx.FSRoot/Folders, rejects any
// lexical escape, and then resolves symlinks along whatever prefix of
// the result already exists on disk, rejecting the request if that real
// path does not stay under the sandbox root — a symlink planted inside
// Folders cannot be used to walk out of it, matching spec.md §8's
// real-path-resolution requirement. A rejection is reported as
// StatusAdminAuthFail, not a distinct code, so the failure mode cannot
// be distinguished from a bad admin key (spec.md §7).
//
// Path components past the real sandbox root that do not exist yet
// (e.g. the new file put_object is about to create) are rejoined
// lexically: a component that doesn't exist cannot itself be a symlink.
func resolveSandboxPath(ctx *Ctx, name string) (string, bool) {
	root := filepath.Join(ctx.FSRoot, "Folders")
	joined := filepath.Join(root, name)
	rootWithSep := root + string(filepath.Separator)
	if joined != root && !strings.HasPrefix(joined, rootWithSep) {
		return "", false
	}

	// ctx.FSRoot is the node's own data directory, already established
	// at startup; Folders itself may not exist yet (put_object creates
	// it lazily), so the walk anchors on FSRoot rather than requiring
	// Folders to pre-exist.
	realFSRoot, err := filepath.EvalSymlinks(ctx.FSRoot)
	if err != nil {
		return "", false
	}

	rel, err := filepath.Rel(ctx.FSRoot, joined)
	if err != nil {
		return "", false
	}
	segments := strings.Split(rel, string(filepath.Separator))

	existing := ctx.FSRoot
	i := 0
	for ; i < len(segments); i++ {
		next := filepath.Join(existing, segments[i])
		if _, statErr := os.Lstat(next); statErr != nil {
			break
		}
		existing = next
	}

	realExisting, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", false
	}

	if i == 0 {
		// Folders doesn't exist yet: nothing has been resolved past
		// FSRoot, so the whole remaining path is freshly constructed and
		// cannot contain a symlink.
		if realExisting != realFSRoot && !strings.HasPrefix(realExisting+string(filepath.Separator), realFSRoot+string(filepath.Separator)) {
			return "", false
		}
	} else {
		realRootFolders := filepath.Join(realFSRoot, "Folders")
		realRootFoldersWithSep := realRootFolders + string(filepath.Separator)
		if realExisting != realRootFolders && !strings.HasPrefix(realExisting+string(filepath.Separator), realRootFoldersWithSep) {
			return "", false
		}
	}

	result := realExisting
	for _, seg := range segments[i:] {
		result = filepath.Join(result, seg)
	}
	return result, true
}

func decodeAdminAndName(payload []byte) (adminKey []byte, name string, ok bool) {
	if len(payload) < protocol.AdminKeySize+2 {
		return nil, "", false
	}
	adminKey = payload[:protocol.AdminKeySize]
	nameLen := int(binary.BigEndian.Uint16(payload[protocol.AdminKeySize : protocol.AdminKeySize+2]))
	base := protocol.AdminKeySize + 2
	if len(payload) < base+nameLen {
		return nil, "", false
	}
	return adminKey, string(payload[base : base+nameLen]), true
}

// GetObject reads a file from the rooted Folders sandbox.
func GetObject(ctx *Ctx, payload []byte) Result {
	adminKey, name, ok := decodeAdminAndName(payload)
	if !ok {
		return Result{Status: protocol.StatusPacketLength}
	}
	if !checkAdmin(ctx, adminKey) {
		return Result{Status: protocol.StatusAdminAuthFail}
	}
	path, ok := resolveSandboxPath(ctx, name)
	if !ok {
		return Result{Status: protocol.StatusAdminAuthFail}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Status: protocol.StatusFSNotExist}
		}
		return Result{Status: protocol.StatusFSIOError}
	}
	return Result{Status: protocol.StatusSuccess, Body: data}
}

// PutObject writes a file into the rooted Folders sandbox.
func PutObject(ctx *Ctx, payload []byte) Result {
	adminKey, name, ok := decodeAdminAndName(payload)
	if !ok {
		return Result{Status: protocol.StatusPacketLength}
	}
	if !checkAdmin(ctx, adminKey) {
		return Result{Status: protocol.StatusAdminAuthFail}
	}
	base := protocol.AdminKeySize + 2 + len(name)
	content := payload[base:]

	path, ok := resolveSandboxPath(ctx, name)
	if !ok {
		return Result{Status: protocol.StatusAdminAuthFail}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{Status: protocol.StatusFSIOError}
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return Result{Status: protocol.StatusFSIOError}
	}
	return Result{Status: protocol.StatusSuccess}
}

// RmObject removes a file from the rooted Folders sandbox.
func RmObject(ctx *Ctx, payload []byte) Result {
	adminKey, name, ok := decodeAdminAndName(payload)
	if !ok {
		return Result{Status: protocol.StatusPacketLength}
	}
	if !checkAdmin(ctx, adminKey) {
		return Result{Status: protocol.StatusAdminAuthFail}
	}
	path, ok := resolveSandboxPath(ctx, name)
	if !ok {
		return Result{Status: protocol.StatusAdminAuthFail}
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return Result{Status: protocol.StatusFSNotExist}
		}
		return Result{Status: protocol.StatusFSIOError}
	}
	return Result{Status: protocol.StatusSuccess}
}
