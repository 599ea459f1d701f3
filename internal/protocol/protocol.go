// Package protocol implements the binary wire format for highlight
// batches.
//
// Frames are length-delimited and decode without copying: a decoded
// request's file contents are subslices of the input buffer, which must
// stay alive for as long as the decoded view is used. Integers are
// big-endian.
//
// Request frame layout:
//
//	magic "PRSM" | version u8 | timeout_ms u32 | file_count u32
//	file record:
//	  ident u16 | language u8 | encoding u8
//	  filename_len u16 | filename bytes
//	  option_count u8 | per option: len u16 | bytes
//	  contents_len u32 | contents bytes
//
// Response frame layout:
//
//	magic "PRSM" | version u8
//	document_count u32
//	  ident u16 | language u8
//	  filename_len u16 | filename bytes
//	  line_count u32 | per line: len u32 | bytes
//	failure_count u32
//	  ident u16 | reason u8
package protocol

import (
	"encoding/binary"

	"github.com/prismd/prismd/internal/engine"
	"github.com/prismd/prismd/internal/errors"
	"github.com/prismd/prismd/internal/language"
)

// Magic opens every frame.
var Magic = [4]byte{'P', 'R', 'S', 'M'}

// Version is the current frame version. Decoders reject anything else.
const Version = 1

const headerLen = 4 + 1

// Wire values for the encoding enum.
const (
	wireUTF8  = 0
	wireUTF16 = 1
)

// Wire values for the failure reason enum, aligned with
// errors.FailKind.
const (
	reasonInternal        = 0
	reasonUnknownLanguage = 1
	reasonTimedOut        = 2
	reasonCancelled       = 3
	reasonInvalidEncoding = 4
)

// Limits bounds what DecodeRequest accepts. Zero fields mean the
// defaults from the service configuration should have been filled in by
// the caller; they are not defaulted here.
type Limits struct {
	// MaxRequestBytes bounds the whole frame.
	MaxRequestBytes int64
	// MaxFileBytes bounds one file's contents field.
	MaxFileBytes int64
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) bytes(n int) ([]byte, bool) {
	if n < 0 || r.remaining() < n {
		return nil, false
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, true
}

func (r *reader) u8() (uint8, bool) {
	b, ok := r.bytes(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (r *reader) u16() (uint16, bool) {
	b, ok := r.bytes(2)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint16(b), true
}

func (r *reader) u32() (uint32, bool) {
	b, ok := r.bytes(4)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}

// DecodeRequest parses one request frame. File contents in the result
// alias buf; the caller owns buf and must keep it alive until the batch
// finishes. Size violations and truncated or trailing bytes reject the
// whole request.
func DecodeRequest(buf []byte, lim Limits) (*engine.Request, error) {
	if lim.MaxRequestBytes > 0 && int64(len(buf)) > lim.MaxRequestBytes {
		return nil, errors.PayloadTooLarge(int64(len(buf)), lim.MaxRequestBytes)
	}

	r := &reader{buf: buf}
	magic, ok := r.bytes(4)
	if !ok || string(magic) != string(Magic[:]) {
		return nil, errors.MalformedFrame("bad magic", nil)
	}
	ver, ok := r.u8()
	if !ok || ver != Version {
		return nil, errors.MalformedFrame("unsupported frame version", nil)
	}
	timeoutMS, ok := r.u32()
	if !ok {
		return nil, errors.MalformedFrame("truncated header", nil)
	}
	count, ok := r.u32()
	if !ok {
		return nil, errors.MalformedFrame("truncated header", nil)
	}

	req := &engine.Request{TimeoutMS: timeoutMS}
	if count > 0 {
		req.Files = make([]engine.File, 0, min(int(count), 1024))
	}
	for i := uint32(0); i < count; i++ {
		f, err := decodeFile(r, lim)
		if err != nil {
			return nil, err
		}
		req.Files = append(req.Files, f)
	}
	if r.remaining() != 0 {
		return nil, errors.MalformedFrame("trailing bytes after last file record", nil)
	}
	return req, nil
}

func decodeFile(r *reader, lim Limits) (engine.File, error) {
	var f engine.File

	ident, ok := r.u16()
	if !ok {
		return f, errors.MalformedFrame("truncated file record", nil)
	}
	langByte, ok := r.u8()
	if !ok {
		return f, errors.MalformedFrame("truncated file record", nil)
	}
	lang := language.ID(langByte)
	if !lang.Valid() && lang != language.Unspecified {
		// Unknown enum values degrade to unspecified so a newer client
		// gets unknownLanguage for that file instead of a hard reject.
		lang = language.Unspecified
	}
	encByte, ok := r.u8()
	if !ok {
		return f, errors.MalformedFrame("truncated file record", nil)
	}

	nameLen, ok := r.u16()
	if !ok {
		return f, errors.MalformedFrame("truncated filename", nil)
	}
	name, ok := r.bytes(int(nameLen))
	if !ok {
		return f, errors.MalformedFrame("truncated filename", nil)
	}

	optCount, ok := r.u8()
	if !ok {
		return f, errors.MalformedFrame("truncated options", nil)
	}
	var opts []string
	for j := uint8(0); j < optCount; j++ {
		optLen, ok := r.u16()
		if !ok {
			return f, errors.MalformedFrame("truncated option", nil)
		}
		opt, ok := r.bytes(int(optLen))
		if !ok {
			return f, errors.MalformedFrame("truncated option", nil)
		}
		opts = append(opts, string(opt))
	}

	contentLen, ok := r.u32()
	if !ok {
		return f, errors.MalformedFrame("truncated contents length", nil)
	}
	if lim.MaxFileBytes > 0 && int64(contentLen) > lim.MaxFileBytes {
		return f, errors.FileTooLarge(ident, int64(contentLen), lim.MaxFileBytes)
	}
	contents, ok := r.bytes(int(contentLen))
	if !ok {
		return f, errors.MalformedFrame("truncated contents", nil)
	}

	f.Ident = ident
	f.Filename = string(name)
	f.Language = lang
	f.Options = opts
	if len(contents) > 0 {
		f.Contents = contents
	}
	switch encByte {
	case wireUTF8:
		f.Encoding = engine.EncodingUTF8
	default:
		f.Encoding = engine.EncodingUTF16
	}
	return f, nil
}

// EncodeRequest serializes a request frame. Used by the client; the
// server only decodes.
func EncodeRequest(req *engine.Request) []byte {
	size := headerLen + 4 + 4
	for _, f := range req.Files {
		size += 2 + 1 + 1 + 2 + len(f.Filename) + 1 + 4 + len(f.Contents)
		for _, opt := range f.Options {
			size += 2 + len(opt)
		}
	}

	w := newWriter(size)
	w.raw(Magic[:])
	w.u8(Version)
	w.u32(req.TimeoutMS)
	w.u32(uint32(len(req.Files)))
	for _, f := range req.Files {
		w.u16(f.Ident)
		w.u8(uint8(f.Language))
		if f.Encoding == engine.EncodingUTF8 {
			w.u8(wireUTF8)
		} else {
			w.u8(wireUTF16)
		}
		w.u16(uint16(len(f.Filename)))
		w.raw([]byte(f.Filename))
		w.u8(uint8(len(f.Options)))
		for _, opt := range f.Options {
			w.u16(uint16(len(opt)))
			w.raw([]byte(opt))
		}
		w.u32(uint32(len(f.Contents)))
		w.raw(f.Contents)
	}
	return w.buf
}

// EncodeResponse serializes a response frame.
func EncodeResponse(resp *engine.Response) []byte {
	size := headerLen + 4 + 4
	for _, d := range resp.Documents {
		size += 2 + 1 + 2 + len(d.Filename) + 4
		for _, line := range d.Lines {
			size += 4 + len(line)
		}
	}
	size += 3 * len(resp.Failures)

	w := newWriter(size)
	w.raw(Magic[:])
	w.u8(Version)
	w.u32(uint32(len(resp.Documents)))
	for _, d := range resp.Documents {
		w.u16(d.Ident)
		w.u8(uint8(d.Language))
		w.u16(uint16(len(d.Filename)))
		w.raw([]byte(d.Filename))
		w.u32(uint32(len(d.Lines)))
		for _, line := range d.Lines {
			w.u32(uint32(len(line)))
			w.raw([]byte(line))
		}
	}
	w.u32(uint32(len(resp.Failures)))
	for _, f := range resp.Failures {
		w.u16(f.Ident)
		w.u8(reasonByte(f.Reason))
	}
	return w.buf
}

// DecodeResponse parses a response frame. Used by the client.
func DecodeResponse(buf []byte) (*engine.Response, error) {
	r := &reader{buf: buf}
	magic, ok := r.bytes(4)
	if !ok || string(magic) != string(Magic[:]) {
		return nil, errors.MalformedFrame("bad magic", nil)
	}
	ver, ok := r.u8()
	if !ok || ver != Version {
		return nil, errors.MalformedFrame("unsupported frame version", nil)
	}

	resp := &engine.Response{}
	docCount, ok := r.u32()
	if !ok {
		return nil, errors.MalformedFrame("truncated response header", nil)
	}
	for i := uint32(0); i < docCount; i++ {
		var d engine.Document
		ident, ok := r.u16()
		if !ok {
			return nil, errors.MalformedFrame("truncated document record", nil)
		}
		langByte, ok := r.u8()
		if !ok {
			return nil, errors.MalformedFrame("truncated document record", nil)
		}
		nameLen, ok := r.u16()
		if !ok {
			return nil, errors.MalformedFrame("truncated document filename", nil)
		}
		name, ok := r.bytes(int(nameLen))
		if !ok {
			return nil, errors.MalformedFrame("truncated document filename", nil)
		}
		lineCount, ok := r.u32()
		if !ok {
			return nil, errors.MalformedFrame("truncated line count", nil)
		}
		for j := uint32(0); j < lineCount; j++ {
			lineLen, ok := r.u32()
			if !ok {
				return nil, errors.MalformedFrame("truncated line", nil)
			}
			line, ok := r.bytes(int(lineLen))
			if !ok {
				return nil, errors.MalformedFrame("truncated line", nil)
			}
			d.Lines = append(d.Lines, string(line))
		}
		d.Ident = ident
		d.Language = language.ID(langByte)
		d.Filename = string(name)
		resp.Documents = append(resp.Documents, d)
	}

	failCount, ok := r.u32()
	if !ok {
		return nil, errors.MalformedFrame("truncated failure count", nil)
	}
	for i := uint32(0); i < failCount; i++ {
		ident, ok := r.u16()
		if !ok {
			return nil, errors.MalformedFrame("truncated failure record", nil)
		}
		reason, ok := r.u8()
		if !ok {
			return nil, errors.MalformedFrame("truncated failure record", nil)
		}
		resp.Failures = append(resp.Failures, engine.Failure{
			Ident:  ident,
			Reason: kindOf(reason),
		})
	}
	if r.remaining() != 0 {
		return nil, errors.MalformedFrame("trailing bytes after last failure record", nil)
	}
	return resp, nil
}

func reasonByte(k errors.FailKind) uint8 {
	switch k {
	case errors.KindUnknownLanguage:
		return reasonUnknownLanguage
	case errors.KindTimedOut:
		return reasonTimedOut
	case errors.KindCancelled:
		return reasonCancelled
	case errors.KindInvalidEncoding:
		return reasonInvalidEncoding
	default:
		return reasonInternal
	}
}

func kindOf(b uint8) errors.FailKind {
	switch b {
	case reasonUnknownLanguage:
		return errors.KindUnknownLanguage
	case reasonTimedOut:
		return errors.KindTimedOut
	case reasonCancelled:
		return errors.KindCancelled
	case reasonInvalidEncoding:
		return errors.KindInvalidEncoding
	default:
		return errors.KindInternal
	}
}

type writer struct {
	buf []byte
}

func newWriter(size int) *writer {
	return &writer{buf: make([]byte, 0, size)}
}

func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }
func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }

func (w *writer) u16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *writer) u32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}
